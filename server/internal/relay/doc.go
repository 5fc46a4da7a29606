// Package relay implements the state and broadcast engine of the sensor relay.
//
// The Engine is driven by four transport events:
//
//	Connect(c)            register c, start its heartbeat, replay the cache to it
//	HandleMessage(c, b)   parse b; merge sensor updates and broadcast them verbatim
//	Disconnect(c)         stop c's heartbeat and unregister it
//	Run(ctx)              periodic sweep of connections that went non-open
//
// Inbound frames are JSON objects. {"type":"heartbeat"} is acknowledged and
// ignored. A frame with a non-empty string "sensorId" is merged into that
// sensor's record (stamped with lastUpdated) and relayed to every open
// connection, sender included. Any other object is dropped. Frames that are
// not JSON objects are logged and dropped; the connection stays open.
//
// Sends are best-effort: Conn.Send never blocks and a refused send is counted,
// not retried.
package relay
