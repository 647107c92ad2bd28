// Package wire defines the JSON frame model spoken on the gateway socket.
//
// Three frame kinds travel over one long-lived WebSocket connection:
//
//   - Request:  {"type":"req", "id":1, "method":"...", "params":{...}}
//   - Response: {"type":"res", "id":1, "ok":true, "payload":{...}}
//     or        {"type":"res", "id":1, "ok":false, "error":{"code":"..."}}
//   - Event:    {"type":"event", "event":"...", "payload":{...}, "seq":7}
//
// Frames are newline-free JSON text messages. Decode sniffs the "type"
// discriminator before unmarshalling the concrete frame, so callers always
// receive a typed *Request, *Response, or *Event.
//
// The connect method, its parameter block, and the handshake event names in
// this package are a binding contract with the remote gateway; field names
// and casing must not change.
package wire
