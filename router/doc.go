// Package router dispatches named device-messaging commands to the permission
// gate, the message store, and the transport.
//
// Every command produces exactly one [Response]: a success payload or one
// typed [Error]. The command set is closed:
//
//   - writeMessage(address, body, timestamp, direction) -> bool
//   - listInboundMessages() -> []sms.Message
//   - sendMessage(address, body) -> bool
//   - requestPermissions(capabilities) -> bool
//
// Unknown names yield [KindNotImplemented], so callers can tell "this router
// does not support X" apart from "X failed".
//
// requestPermissions only dispatches the platform prompt. The user's answer
// arrives later through the hook registered with [Router.OnPermissionDecision].
package router
