// Package permission gates device-messaging operations on platform grants.
//
// Checks are synchronous reads of platform state and are never cached.
// Requests are two-phase: [Gate.Request] registers one pending decision
// handler, fires the platform prompt, and returns at once. The user's answer
// arrives later through the callback handed to [Platform.Prompt], at which
// point the handler is deregistered and invoked exactly once. Abandoned
// requests never fire.
package permission
