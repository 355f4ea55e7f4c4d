// Package sensor implements the acquisition loops shared by every driver.
//
// A sensor is a manage.Worker built from a driver: Pull polls a PullDriver
// in batches of Length samples spaced Duration apart, Push drains a
// gateway/mqtt bridge and batches whatever arrives. Both assemble one
// frame per batch and hand it to the sensor's publisher, which carries the
// subscribed pipelines and exporters. Loop failures surface through the
// supervisor's Reporter; a broken gateway link ends the run so the
// supervisor can restart it with backoff.
//
// Driver packages (feedscale, airquality, feedergate, replay) bind
// themselves to a Registry; the engine builds workers from configuration
// blocks through it.
package sensor
