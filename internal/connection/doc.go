// Package connection implements the websocket Transport used by the
// correlation client.
//
// A WSTransport:
//   - Dials one gorilla/websocket connection per lifetime
//   - Serializes writes with a write mutex
//   - Answers server pings and sends its own keepalive pings
//   - Closes connections that show no ping/pong activity for PingTimeout
//   - Reports the end of each lifetime exactly once via OnDisconnect
package connection
