// Package ws is the WebSocket transport of the relay, built on
// gorilla/websocket.
//
// Handler.ServeHTTP upgrades a request and drives one connection for its
// lifetime: it reports Connect, every inbound frame, and finally Disconnect to
// the Events sink (the relay engine). Each connection gets:
//
//   - a bounded outgoing buffer drained by a writer goroutine, so Send never
//     blocks; a full buffer drops the message
//   - WebSocket ping frames every PongWait*9/10; a peer that stops answering
//     is treated as dead when the read deadline expires
//   - an optional token-bucket limit on inbound frames
//
// A connection stops being open as soon as either pump fails or the peer
// closes. The upgrader accepts all origins; apply restrictions at the reverse
// proxy level.
package ws
