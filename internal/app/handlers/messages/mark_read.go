package messages

import (
	"context"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/services/readtracking"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

const markMessageReadKey = "messages.mark_read"

type MarkMessageReadCommand struct {
	UserID    string
	MessageID string
}

func (c MarkMessageReadCommand) Key() string   { return markMessageReadKey }
func (c MarkMessageReadCommand) Actor() string { return c.UserID }

type MarkMessageReadHandler struct {
	Reads     *readtracking.Coordinator
	Directory domainuser.Directory
}

func (h *MarkMessageReadHandler) Handle(ctx context.Context, cmd MarkMessageReadCommand) (dto.Message, error) {
	msg, err := h.Reads.MarkMessageRead(ctx, cmd.UserID, domainmessaging.MessageID(cmd.MessageID))
	if err != nil {
		return dto.Message{}, err
	}
	profiles, err := support.LoadProfiles(ctx, h.Directory, []string{msg.SenderID}, msg.Recipients)
	if err != nil {
		return dto.Message{}, err
	}
	return dto.MapMessage(msg, profiles), nil
}

var _ commands.Handler[MarkMessageReadCommand, dto.Message] = (*MarkMessageReadHandler)(nil)
