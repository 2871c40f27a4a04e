package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/service"
)

// userError turns a typed domain error into the text shown in chat. Anything
// untyped is reported generically and left for the error log.
func userError(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return "❌ " + e.Message
	}
	return "❌ Something went wrong. Please try again."
}

// callbackChatID picks the chat to reply in. Telegram omits the original
// message from callbacks older than 48 hours, so fall back to a direct
// message to the pressing user.
func callbackChatID(query *tgbotapi.CallbackQuery) int64 {
	if query.Message != nil {
		return query.Message.Chat.ID
	}
	return query.From.ID
}

func memberStatusEmoji(status string) string {
	switch status {
	case models.MemberActive:
		return "✅"
	case models.MemberInvited:
		return "⏳"
	default:
		return "▫️"
	}
}

// ---------------------------------------------------------------------------
// FamilyHandler – /family
// ---------------------------------------------------------------------------

// FamilyHandler handles the /family command to show the family overview.
type FamilyHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewFamilyHandler creates a new FamilyHandler.
func NewFamilyHandler(svc *service.Service, logger *logrus.Logger) *FamilyHandler {
	return &FamilyHandler{svc: svc, logger: logger}
}

// Handle processes the /family command.
func (h *FamilyHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	user, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	overview, err := h.svc.GetFamilyOverview(ctx, user.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return fmt.Errorf("family overview: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("👨‍👩‍👧 Family access\n\n")

	if !overview.FamilyEnabled && overview.Role != models.RoleMember {
		sb.WriteString("Your tariff does not include family access.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Role: %s\n", overview.RoleName))
		sb.WriteString(fmt.Sprintf("Slots: %d of %d used\n\n", overview.UsedSlots, overview.MaxMembersIncludingOwner))
		for _, m := range overview.Members {
			sb.WriteString(fmt.Sprintf("%s %s (%s", memberStatusEmoji(m.Status), m.DisplayName, m.Role))
			if m.DevicesCount > 0 {
				sb.WriteString(fmt.Sprintf(", %d devices", m.DevicesCount))
			}
			sb.WriteString(")\n")
		}
		if len(overview.Invites) > 0 {
			sb.WriteString("\nPending invites:\n")
			for _, inv := range overview.Invites {
				sb.WriteString(fmt.Sprintf("⏳ #%d %s, expires %s\n",
					inv.InviteID, inv.DisplayName, inv.ExpiresAt.Format("02 Jan 15:04")))
			}
		}
		if overview.CanInvite {
			sb.WriteString("\nInvite someone with /invite @username\n")
		}
	}

	if len(overview.PendingInvitesForYou) > 0 {
		sb.WriteString("\nYou were invited by:\n")
		for _, inv := range overview.PendingInvitesForYou {
			sb.WriteString(fmt.Sprintf("✉️ %s, expires %s\n",
				inv.DisplayName, inv.ExpiresAt.Format("02 Jan 15:04")))
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	if len(overview.PendingInvitesForYou) > 0 {
		inv := overview.PendingInvitesForYou[0]
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Accept", fmt.Sprintf("family_invite:accept:%d", inv.InviteID)),
				tgbotapi.NewInlineKeyboardButtonData("Decline", fmt.Sprintf("family_invite:decline:%d", inv.InviteID)),
			),
		)
	}
	bot.Send(msg)
	return nil
}

// ---------------------------------------------------------------------------
// InviteHandler – /invite @username
// ---------------------------------------------------------------------------

// InviteHandler handles the /invite command.
type InviteHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewInviteHandler creates a new InviteHandler.
func NewInviteHandler(svc *service.Service, logger *logrus.Logger) *InviteHandler {
	return &InviteHandler{svc: svc, logger: logger}
}

// Handle processes the /invite command.
func (h *InviteHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /invite @username"))
		return nil
	}

	ctx := context.Background()

	user, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	invite, err := h.svc.CreateFamilyInvite(ctx, user.ID, args[0])
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	bot.Send(tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("✅ Invite sent. It expires %s.", invite.ExpiresAt.Format("02 Jan 15:04"))))

	h.logger.WithFields(logrus.Fields{
		"chat_id":   message.Chat.ID,
		"user_id":   message.From.ID,
		"invite_id": invite.ID,
	}).Info("Invite sent from chat")
	return nil
}

// ---------------------------------------------------------------------------
// RevokeHandler – /revoke <invite id>
// ---------------------------------------------------------------------------

// RevokeHandler handles the /revoke command. Invite ids come from /family.
type RevokeHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewRevokeHandler creates a new RevokeHandler.
func NewRevokeHandler(svc *service.Service, logger *logrus.Logger) *RevokeHandler {
	return &RevokeHandler{svc: svc, logger: logger}
}

// Handle processes the /revoke command.
func (h *RevokeHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /revoke <invite id>"))
		return nil
	}
	inviteID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /revoke <invite id>"))
		return nil
	}

	ctx := context.Background()

	user, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	if _, err = h.svc.RevokeFamilyInvite(ctx, user.ID, inviteID); err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	bot.Send(tgbotapi.NewMessage(message.Chat.ID, "✅ Invite revoked."))
	return nil
}

// ---------------------------------------------------------------------------
// RemoveHandler – /remove @username
// ---------------------------------------------------------------------------

// RemoveHandler handles the /remove command to kick a member.
type RemoveHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewRemoveHandler creates a new RemoveHandler.
func NewRemoveHandler(svc *service.Service, logger *logrus.Logger) *RemoveHandler {
	return &RemoveHandler{svc: svc, logger: logger}
}

// Handle processes the /remove command.
func (h *RemoveHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /remove @username"))
		return nil
	}

	ctx := context.Background()

	owner, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}
	member, err := h.svc.UserByHandle(ctx, args[0])
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	if err = h.svc.RemoveFamilyMember(ctx, owner.ID, member.ID); err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	bot.Send(tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("✅ %s was removed from your family.", member.DisplayName())))
	return nil
}

// ---------------------------------------------------------------------------
// LeaveHandler – /leave
// ---------------------------------------------------------------------------

// LeaveHandler handles the /leave command for a member exiting their group.
type LeaveHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewLeaveHandler creates a new LeaveHandler.
func NewLeaveHandler(svc *service.Service, logger *logrus.Logger) *LeaveHandler {
	return &LeaveHandler{svc: svc, logger: logger}
}

// Handle processes the /leave command.
func (h *LeaveHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	user, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	if err = h.svc.LeaveFamily(ctx, user.ID); err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	bot.Send(tgbotapi.NewMessage(message.Chat.ID, "✅ You left the family."))
	return nil
}

// ---------------------------------------------------------------------------
// InviteCallbackHandler – family_invite:accept:<id> / family_invite:decline:<id>
// ---------------------------------------------------------------------------

// InviteCallbackHandler reacts to the Accept/Decline buttons on an invite
// message.
type InviteCallbackHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewInviteCallbackHandler creates a new InviteCallbackHandler.
func NewInviteCallbackHandler(svc *service.Service, logger *logrus.Logger) *InviteCallbackHandler {
	return &InviteCallbackHandler{svc: svc, logger: logger}
}

// HandleCallback processes an invite decision callback.
func (h *InviteCallbackHandler) HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("malformed invite callback args: %v", args)
	}
	action := args[0]
	inviteID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed invite id %q: %w", args[1], err)
	}

	ctx := context.Background()
	chatID := callbackChatID(query)

	user, err := h.svc.UserByTelegramID(ctx, query.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(chatID, userError(err)))
		return nil
	}

	var resultText string
	switch action {
	case "accept":
		if _, err = h.svc.AcceptFamilyInvite(ctx, user.ID, inviteID); err == nil {
			resultText = "✅ You joined the family. VPN access is active."
		}
	case "decline":
		if _, err = h.svc.DeclineFamilyInvite(ctx, user.ID, inviteID); err == nil {
			resultText = "You declined the invitation."
		}
	default:
		return fmt.Errorf("unknown invite action %q", action)
	}
	if err != nil {
		resultText = userError(err)
	}

	// Replace the invite prompt so the buttons cannot be pressed twice.
	// Callbacks from messages Telegram no longer carries get a fresh reply.
	edited := false
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, resultText)
		_, sendErr := bot.Send(edit)
		edited = sendErr == nil
	}
	if !edited {
		bot.Send(tgbotapi.NewMessage(chatID, resultText))
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":   query.From.ID,
		"invite_id": inviteID,
		"action":    action,
	}).Info("Invite decision handled")
	return nil
}
