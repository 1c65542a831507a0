package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Slash command and option names.
const (
	cmdSuggest       = "suggest"
	cmdApprove       = "approve"
	cmdReject        = "reject"
	cmdSuggestionSet = "suggestionset"

	subChannel      = "channel"
	subEmoji        = "emoji"
	subButtonColor  = "buttoncolor"
	subAutoDelete   = "autodelete"
	subShowSettings = "showsettings"
	subView         = "view"
	subEditReason   = "editreason"
	subReset        = "reset"
	subResetCog     = "resetcog"

	optText    = "text"
	optID      = "id"
	optReason  = "reason"
	optType    = "type"
	optChannel = "channel"
	optVote    = "vote"
	optEmoji   = "emoji"
	optColour  = "colour"
)

var (
	manageGuild = int64(discordgo.PermissionManageServer)
	dmAllowed   = false
)

func idOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        optID,
		Description: desc,
		Required:    true,
		MinValue:    func() *float64 { v := 1.0; return &v }(),
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optReason,
		Description: "Reason shown on the card",
		Required:    required,
		MaxLength:   1024,
	}
}

func voteOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optVote,
		Description: "Which button",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "upvote", Value: "up"},
			{Name: "downvote", Value: "down"},
		},
	}
}

func subcommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

// Commands returns the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         cmdSuggest,
			Description:  "Suggest something",
			DMPermission: &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optText,
					Description: "Your suggestion",
					Required:    true,
					MaxLength:   4000,
				},
			},
		},
		{
			Name:                     cmdApprove,
			Description:              "Approve a suggestion",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options:                  []*discordgo.ApplicationCommandOption{idOption("Suggestion to approve"), reasonOption(false)},
		},
		{
			Name:                     cmdReject,
			Description:              "Reject a suggestion",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options:                  []*discordgo.ApplicationCommandOption{idOption("Suggestion to reject"), reasonOption(false)},
		},
		{
			Name:                     cmdSuggestionSet,
			Description:              "Suggestion settings",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand(subChannel, "Set or clear a suggestion channel",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optType,
						Description: "Which channel",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "suggest", Value: "suggest"},
							{Name: "reject", Value: "reject"},
							{Name: "approve", Value: "approve"},
						},
					},
					&discordgo.ApplicationCommandOption{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         optChannel,
						Description:  "Leave empty to clear",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
					},
				),
				subcommand(subEmoji, "Set or reset a vote button emoji",
					voteOption(),
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optEmoji,
						Description: "Leave empty to reset",
					},
				),
				subcommand(subButtonColor, "Set or reset a vote button colour",
					voteOption(),
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optColour,
						Description: "Leave empty to reset",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "blurple", Value: "blurple"},
							{Name: "green", Value: "green"},
							{Name: "red", Value: "red"},
							{Name: "grey", Value: "grey"},
						},
					},
				),
				subcommand(subAutoDelete, "Toggle deleting suggestion commands"),
				subcommand(subShowSettings, "Show the suggestion settings"),
				subcommand(subView, "Show a suggestion", idOption("Suggestion to show")),
				subcommand(subEditReason, "Change the reason of a resolved suggestion", idOption("Suggestion to edit"), reasonOption(true)),
				subcommand(subReset, "Reset this server's suggestions"),
				subcommand(subResetCog, "Reset the suggestions of every server"),
			},
		},
	}
}

// options indexes an option list by name.
func options(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}
