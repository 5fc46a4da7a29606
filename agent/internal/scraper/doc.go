// Package scraper polls Prometheus text exposition endpoints and extracts the
// metric families a source maps to reading fields. Series are filtered by
// label and summed per field; the compute engine turns the raw values into
// readings.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// authRoundTripper in base.go; each Scraper owns a pre-configured
// *http.Client built by New().
package scraper
