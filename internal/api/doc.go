// Package api provides the Alpha Vantage time-series client.
//
// Endpoint:
//   - https://www.alphavantage.co/query
//
// Functions used: TIME_SERIES_DAILY, TIME_SERIES_INTRADAY
//
// The client spaces calls through a shared RateGate, retries transient HTTP
// failures in its transport, and reports every outcome as a
// model.FetchResult. ParseTimeSeries turns a successful payload into
// model.DataPoint values.
package api
