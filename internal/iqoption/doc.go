// Package iqoption speaks the IQ Option websocket protocol on top of a
// correlation client.
//
// Requests are wrapped in a "sendMessage" envelope whose reply carries the
// same request_id. Live data is requested with a fire-and-forget
// "subscribeMessage" and arrives as push envelopes with no request_id, which
// are routed to persistent subscriptions by their routing fields.
package iqoption
