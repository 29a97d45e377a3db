// Package protocol implements the action wire codec shared by the
// coordinator and its workers.
//
// The wire form is a tagged block: an opening tag on its own line, a YAML
// body, and a closing tag on its own line:
//
//	<task_create>
//	agent_type: explorer
//	title: "Map the storage layer"
//	description: |
//	  Locate every package touching the database and summarize their roles.
//	max_turns: 8
//	</task_create>
//
// Text carrying no block at all decodes to a reasoning-only action. Decoding
// is all-or-nothing: unknown tags, missing required fields and malformed
// bodies each yield a *core.ProtocolError without partial application, and
// exactly one block is accepted per decode (single-action-per-turn
// discipline). Multi-line scalar values survive a round trip verbatim via
// YAML block scalars.
package protocol
