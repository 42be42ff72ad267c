// Package api hosts the HTTP surface of the scraper. Notable routes:
//   - GET /status reports the current or most recent job.
//   - POST /scrape starts a job; POST /scrape/cancel stops it.
//   - POST /scrape-single fetches one USN synchronously.
//   - GET /results lists the saved result sheets.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
