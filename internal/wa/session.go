package wa

import (
	"context"
	"fmt"
	"sort"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"wablast/internal/model"
)

// NewContainer opens the whatsmeow device store on the given sqlite DSN.
func NewContainer(ctx context.Context, dsn string, logger *zap.Logger) (*sqlstore.Container, error) {
	return sqlstore.New(ctx, "sqlite3", dsn, NewLogger(logger.Named("database")))
}

// SetDeviceName sets the name shown in the phone's linked devices list.
// It applies to sessions paired afterwards.
func SetDeviceName(name string) {
	if name != "" {
		store.DeviceProps.Os = proto.String(name)
	}
}

// NewFactory returns a Factory that builds whatsmeow sessions on the first
// device of container. Reconnects are owned by the Supervisor.
func NewFactory(container *sqlstore.Container, logger *zap.Logger) Factory {
	return func(ctx context.Context, h Handler) (Session, error) {
		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			return nil, fmt.Errorf("load device: %w", err)
		}
		client := whatsmeow.NewClient(device, NewLogger(logger.Named("whatsapp")))
		client.EnableAutoReconnect = false
		s := &session{client: client, h: h, logger: logger}
		client.AddEventHandler(s.handleEvent)
		return s, nil
	}
}

type session struct {
	client *whatsmeow.Client
	h      Handler
	logger *zap.Logger
}

func (s *session) Start(ctx context.Context) error {
	s.h.OnLoading(0)
	if s.client.Store.ID != nil {
		return s.client.Connect()
	}
	// QR channel must exist before Connect.
	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return err
	}
	go s.watchQR(qrChan)
	return nil
}

func (s *session) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if item.Code != "" {
				s.h.OnQR(item.Code)
			}
		case "success":
			s.logger.Info("pairing succeeded")
		case whatsmeow.QRChannelEventError:
			s.h.OnAuthFailure(fmt.Sprintf("pairing error: %v", item.Error))
		default:
			s.h.OnAuthFailure("pairing ended: " + item.Event)
		}
	}
}

func (s *session) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		s.h.OnConnected()
	case *events.OfflineSyncPreview:
		s.h.OnLoading(50)
	case *events.OfflineSyncCompleted:
		s.h.OnLoading(100)
	case *events.LoggedOut:
		s.h.OnAuthFailure("logged out")
	case *events.ConnectFailure:
		s.h.OnAuthFailure(fmt.Sprintf("connect failure %v: %s", v.Reason, v.Message))
	case *events.TemporaryBan:
		s.h.OnAuthFailure(fmt.Sprintf("temporary ban: %v", v))
	case *events.StreamReplaced:
		s.h.OnDisconnected("stream replaced")
	case *events.Disconnected:
		s.h.OnDisconnected("connection lost")
	}
}

func (s *session) Close() error {
	s.client.Disconnect()
	return nil
}

func (s *session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

func (s *session) IsRegistered(ctx context.Context, addr string) (bool, error) {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return false, fmt.Errorf("parse JID: %w", err)
	}
	infos, err := s.client.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, err
	}
	if len(infos) == 0 {
		return false, nil
	}
	return infos[0].IsIn, nil
}

func (s *session) OpenConversation(ctx context.Context, addr string) (model.Conversation, error) {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("parse JID: %w", err)
	}
	conv := model.Conversation{ID: jid.String()}
	if c, err := s.client.Store.Contacts.GetContact(ctx, jid); err == nil && c.Found {
		conv.Name = contactName(c)
	}
	return conv, nil
}

func (s *session) SendPresence(ctx context.Context, conv model.Conversation, p model.Presence) error {
	jid, err := types.ParseJID(conv.ID)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	state := types.ChatPresencePaused
	if p == model.PresenceTyping {
		state = types.ChatPresenceComposing
	}
	return s.client.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText)
}

func (s *session) SendText(ctx context.Context, addr, text string) error {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	return sendText(ctx, s.client, jid, text)
}

func (s *session) SendMedia(ctx context.Context, addr string, a model.Attachment, caption string) error {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	return sendMedia(ctx, s.client, jid, a, caption)
}

// RecentConversations lists known one-to-one chats from the contact store.
func (s *session) RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	all, err := s.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]model.Conversation, 0, len(all))
	for jid, c := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		list = append(list, model.Conversation{ID: jid.String(), Name: contactName(c)})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func contactName(c types.ContactInfo) string {
	switch {
	case c.FullName != "":
		return c.FullName
	case c.PushName != "":
		return c.PushName
	default:
		return c.FirstName
	}
}
