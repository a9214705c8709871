package command

import (
	"fmt"

	"github.com/glennhenry/Stagecore/utils"
)

// KickArgs is the argument schema for NewKickCommand.
type KickArgs struct {
	PlayerID string  `json:"playerId"`
	Reason   *string `json:"reason"`
}

// NewKickCommand builds the "kick" operator command: it disconnects the
// named player via kick, recording an audit ticket and an optional reason.
// kick is supplied by the embedding application (typically closing over a
// server.Server's connection table).
func NewKickCommand(kick func(playerID, reason string) error) *TypedCommand[KickArgs] {
	return &TypedCommand[KickArgs]{
		CommandName: "kick",
		Short:       "Disconnects a player.",
		Detailed:    "Forcibly disconnects the named player's connection, recording an audit ticket and an optional reason.",
		Completion:  "player kicked",
		ArgSpecs: []ArgSpec{
			{Name: "playerId", Required: true, Description: "id of the player to disconnect"},
			{Name: "reason", Required: false, Default: (*string)(nil), Description: "reason recorded in the audit log"},
		},
		ExecuteFn: func(ctx *Context, args KickArgs) Result {
			reason := args.Reason
			if reason == nil {
				reason = utils.Pointer("no reason given")
			}
			ticket := utils.GenerateRandomString(8)

			if err := kick(args.PlayerID, *reason); err != nil {
				return ExecutionFailure(fmt.Sprintf("kick %s failed: %v", args.PlayerID, err))
			}
			return Result{Kind: ResultExecuted, Message: fmt.Sprintf("ticket=%s player=%s reason=%q", ticket, args.PlayerID, *reason)}
		},
	}
}

// BroadcastArgs is the argument schema for NewBroadcastCommand.
type BroadcastArgs struct {
	Message string `json:"message"`
	Urgent  bool   `json:"urgent"`
}

// NewBroadcastCommand builds the "broadcast" operator command: it sends
// message to every online player via broadcast.
func NewBroadcastCommand(broadcast func(message string) (recipients int, err error)) *TypedCommand[BroadcastArgs] {
	return &TypedCommand[BroadcastArgs]{
		CommandName: "broadcast",
		Short:       "Sends a server-wide announcement.",
		Detailed:    "Delivers message to every online player. Urgent broadcasts are prefixed for visibility.",
		Completion:  "broadcast sent",
		ArgSpecs: []ArgSpec{
			{Name: "message", Required: true, Description: "announcement text"},
			{Name: "urgent", Required: false, Default: false, Description: "prefix the message as urgent"},
		},
		ExecuteFn: func(ctx *Context, args BroadcastArgs) Result {
			text := args.Message
			if args.Urgent {
				text = "[URGENT] " + text
			}
			recipients, err := broadcast(text)
			if err != nil {
				return ExecutionFailure(fmt.Sprintf("broadcast failed: %v", err))
			}
			return Result{Kind: ResultExecuted, Message: fmt.Sprintf("delivered=%s recipients=%d", utils.BoolToYesNo(recipients > 0), recipients)}
		},
	}
}

// WhoIsArgs is the argument schema for NewWhoIsCommand.
type WhoIsArgs struct {
	PlayerID string `json:"playerId"`
}

// NewWhoIsCommand builds the "whois" operator command: it reports whether
// the named player is online, using lookup to query the player registry.
func NewWhoIsCommand(lookup func(playerID string) (online bool, lastSeen string)) *TypedCommand[WhoIsArgs] {
	return &TypedCommand[WhoIsArgs]{
		CommandName: "whois",
		Short:       "Reports a player's online status.",
		Detailed:    "Looks up whether the named player is currently online and when they were last seen.",
		Completion:  "lookup complete",
		ArgSpecs: []ArgSpec{
			{Name: "playerId", Required: true, Description: "id of the player to look up"},
		},
		ExecuteFn: func(ctx *Context, args WhoIsArgs) Result {
			online, lastSeen := lookup(args.PlayerID)
			return Result{
				Kind:    ResultExecuted,
				Message: fmt.Sprintf("player=%s online=%s lastSeen=%s", args.PlayerID, utils.BoolToYesNo(online), lastSeen),
			}
		},
	}
}
