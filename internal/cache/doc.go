// Package cache provides a Redis-backed api.PayloadCache.
//
// Successful Alpha Vantage payloads are stored verbatim under
// "stockdata:payload:<request key>" so that repeated runs within the TTL do
// not spend API quota.
package cache
