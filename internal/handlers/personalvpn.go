package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/service"
)

// ---------------------------------------------------------------------------
// VPNHandler – /vpn
// ---------------------------------------------------------------------------

// VPNHandler handles the /vpn command showing the personal instance overview.
type VPNHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewVPNHandler creates a new VPNHandler.
func NewVPNHandler(svc *service.Service, logger *logrus.Logger) *VPNHandler {
	return &VPNHandler{svc: svc, logger: logger}
}

// Handle processes the /vpn command.
func (h *VPNHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	user, err := h.svc.UserByTelegramID(ctx, message.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return nil
	}

	overview, err := h.svc.GetPersonalVPNOverview(ctx, user.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, userError(err)))
		return fmt.Errorf("personal vpn overview: %w", err)
	}

	if !overview.HasInstance {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "You do not have a personal VPN instance."))
		return nil
	}

	var sb strings.Builder
	sb.WriteString("🖥 Personal VPN\n\n")
	sb.WriteString(fmt.Sprintf("Status: %s\n", overview.Status))
	sb.WriteString(fmt.Sprintf("Expires: %s\n", overview.ExpiresAt.Format("02 Jan 2006")))
	sb.WriteString(fmt.Sprintf("Sub-users: %d of %d\n", overview.CurrentUserCount, overview.MaxUsers))

	node := "offline ⚠️"
	if overview.Node.Online {
		node = "online"
	}
	name := overview.Node.Name
	if name == "" {
		name = overview.Node.ID
	}
	sb.WriteString(fmt.Sprintf("Node %s: %s\n", name, node))

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	if overview.Status == models.InstanceActive {
		label := "Restart node"
		if overview.RestartCooldownRemaining > 0 {
			label = fmt.Sprintf("Restart node (in %s)", overview.RestartCooldownRemaining.Round(time.Second))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, "pvpn:restart"),
			),
		)
	}
	bot.Send(msg)
	return nil
}

// ---------------------------------------------------------------------------
// VPNCallbackHandler – pvpn:restart
// ---------------------------------------------------------------------------

// VPNCallbackHandler reacts to the restart button on the /vpn overview.
type VPNCallbackHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewVPNCallbackHandler creates a new VPNCallbackHandler.
func NewVPNCallbackHandler(svc *service.Service, logger *logrus.Logger) *VPNCallbackHandler {
	return &VPNCallbackHandler{svc: svc, logger: logger}
}

// HandleCallback processes a personal VPN callback.
func (h *VPNCallbackHandler) HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) error {
	if len(args) != 1 || args[0] != "restart" {
		return fmt.Errorf("unknown vpn callback args: %v", args)
	}

	ctx := context.Background()
	chatID := callbackChatID(query)

	user, err := h.svc.UserByTelegramID(ctx, query.From.ID)
	if err != nil {
		bot.Send(tgbotapi.NewMessage(chatID, userError(err)))
		return nil
	}

	if _, err = h.svc.RestartPersonalNode(ctx, user.ID); err != nil {
		bot.Send(tgbotapi.NewMessage(chatID, userError(err)))
		return nil
	}

	bot.Send(tgbotapi.NewMessage(chatID, "✅ Node restart requested."))

	h.logger.WithFields(logrus.Fields{
		"user_id": query.From.ID,
	}).Info("Node restart requested from chat")
	return nil
}
