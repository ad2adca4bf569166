package telegram

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	td "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Config holds the application credentials issued by my.telegram.org and
// the DC to connect to. Host and Port, when set, are tried first for DC.
type Config struct {
	AppID   int
	AppHash string
	DC      int
	Host    string
	Port    int
}

// GotdClient implements Client on top of gotd. The connection lives inside
// td.Client.Run; Connect starts it in the background and returns once the
// connection is usable.
type GotdClient struct {
	cfg     Config
	storage session.Storage
	logger  *zap.Logger
	ents    *entities
	dl      *downloader.Downloader

	mu       sync.Mutex
	client   *td.Client
	api      *tg.Client
	cancel   context.CancelFunc
	stopped  chan struct{}
	codeHash string
	handlers []func(Event)
}

var _ Client = (*GotdClient)(nil)

// NewGotdClient creates a client persisting its session in storage.
func NewGotdClient(cfg Config, storage session.Storage, logger *zap.Logger) *GotdClient {
	return &GotdClient{
		cfg:     cfg,
		storage: storage,
		logger:  logger,
		ents:    newEntities(),
		dl:      downloader.NewDownloader(),
	}
}

// NewFileClient creates the main-context client backed by a session file.
func NewFileClient(cfg Config, sessionPath string, logger *zap.Logger) *GotdClient {
	return NewGotdClient(cfg, &session.FileStorage{Path: sessionPath}, logger)
}

// NewFactory returns a Factory building in-memory clients seeded from a
// handed-off session, one per worker. The DC address always comes from the
// session; the session storage is only seeded with a key, since gotd rejects
// stored data whose key does not match its key id.
func NewFactory(cfg Config, logger *zap.Logger) Factory {
	return func(s SessionData) (Client, error) {
		storage := new(session.StorageMemory)
		wcfg := cfg
		if s.DC != 0 {
			wcfg.DC, wcfg.Host, wcfg.Port = s.DC, s.Host, s.Port
		}
		if s.HasKey() {
			if err := saveSession(context.Background(), storage, s); err != nil {
				return nil, fmt.Errorf("seed worker session: %w", err)
			}
		}
		return NewGotdClient(wcfg, storage, logger), nil
	}
}

// Connect starts the connection and blocks until it is ready or fails.
func (c *GotdClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return nil
	}
	client := td.NewClient(c.cfg.AppID, c.cfg.AppHash, td.Options{
		SessionStorage: c.storage,
		UpdateHandler:  td.UpdateHandlerFunc(c.handleUpdates),
		Logger:         c.logger.Named("gotd"),
		DC:             c.cfg.DC,
		DCList:         dcList(c.cfg),
	})
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	runErr := make(chan error, 1)
	stopped := make(chan struct{})
	c.client, c.api, c.cancel, c.stopped = client, client.API(), cancel, stopped
	c.mu.Unlock()

	go func() {
		defer close(stopped)
		err := client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return nil
		})
		c.mu.Lock()
		if c.client == client {
			c.client, c.api, c.cancel = nil, nil, nil
		}
		c.mu.Unlock()
		select {
		case <-ready:
			c.emit(Event{Kind: EventDisconnected, Err: err})
		default:
			runErr <- err
		}
	}()

	select {
	case <-ready:
		c.emit(Event{Kind: EventConnected})
		return nil
	case err := <-runErr:
		if err == nil {
			err = ErrNotConnected
		}
		return fmt.Errorf("connect: %w", err)
	case <-ctx.Done():
		cancel()
		<-stopped
		return ctx.Err()
	}
}

// Disconnect stops the connection and waits for it to wind down.
func (c *GotdClient) Disconnect() {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (c *GotdClient) conn() (*td.Client, *tg.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, nil, ErrNotConnected
	}
	return c.client, c.api, nil
}

func (c *GotdClient) IsAuthorized(ctx context.Context) (bool, error) {
	client, _, err := c.conn()
	if err != nil {
		return false, err
	}
	st, err := client.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return st.Authorized, nil
}

func (c *GotdClient) SelfUser(ctx context.Context) (*User, error) {
	client, _, err := c.conn()
	if err != nil {
		return nil, err
	}
	self, err := client.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("get self: %w", err)
	}
	c.ents.add([]tg.UserClass{self}, nil)
	u := convertUser(self)
	return &u, nil
}

func (c *GotdClient) Dialogs(ctx context.Context, opts DialogOptions) ([]Dialog, error) {
	_, api, err := c.conn()
	if err != nil {
		return nil, err
	}
	res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer:    &tg.InputPeerSelf{},
		Limit:         opts.Limit,
		ExcludePinned: opts.ExcludePinned,
		FolderID:      opts.FolderID,
	})
	if err != nil {
		return nil, fmt.Errorf("get dialogs: %w", err)
	}
	mod, ok := res.AsModified()
	if !ok {
		return nil, &ProtocolError{Op: "getDialogs", Field: "dialogs"}
	}
	c.ents.add(mod.GetUsers(), mod.GetChats())

	var dialogs []Dialog
	for _, d := range mod.GetDialogs() {
		dlg, err := c.ents.dialog(d)
		if errors.Is(err, errSkipDialog) {
			continue
		}
		if err != nil {
			return nil, err
		}
		dialogs = append(dialogs, dlg)
	}
	return dialogs, nil
}

func (c *GotdClient) Messages(ctx context.Context, chatID int64, ids ...int) ([]Message, error) {
	_, api, err := c.conn()
	if err != nil {
		return nil, err
	}
	peer, err := c.ents.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	req := make([]tg.InputMessageClass, 0, len(ids))
	for _, id := range ids {
		req = append(req, &tg.InputMessageID{ID: id})
	}

	var res tg.MessagesMessagesClass
	if ch, ok := peer.(*tg.InputPeerChannel); ok {
		res, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
			ID:      req,
		})
	} else {
		res, err = api.MessagesGetMessages(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	mod, ok := res.AsModified()
	if !ok {
		return nil, &ProtocolError{Op: "getMessages", Field: "messages"}
	}
	c.ents.add(mod.GetUsers(), mod.GetChats())

	var out []Message
	for _, m := range mod.GetMessages() {
		if msg, ok := convertMessage(chatID, m); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (c *GotdClient) DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error) {
	if ref == nil {
		return nil, ErrNoMedia
	}
	loc, ok := ref.loc.(tg.InputFileLocationClass)
	if !ok {
		return nil, ErrNoMedia
	}
	return c.download(ctx, loc)
}

func (c *GotdClient) DownloadProfilePhoto(ctx context.Context, peerID int64, opts PhotoOptions) ([]byte, error) {
	peer, err := c.ents.inputPeer(peerID)
	if err != nil {
		return nil, err
	}
	photoID := opts.PhotoID
	if photoID == 0 {
		photoID = c.ents.photoID(peerID)
	}
	if photoID == 0 {
		return nil, ErrNoPhoto
	}
	data, err := c.download(ctx, &tg.InputPeerPhotoFileLocation{
		Big:     opts.Big,
		Peer:    peer,
		PhotoID: photoID,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoPhoto
	}
	return data, nil
}

func (c *GotdClient) download(ctx context.Context, loc tg.InputFileLocationClass) ([]byte, error) {
	_, api, err := c.conn()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := c.dl.Download(api, loc).Stream(ctx, &buf); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *GotdClient) SendCode(ctx context.Context, phone string) error {
	client, _, err := c.conn()
	if err != nil {
		return err
	}
	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		c.mu.Lock()
		c.codeHash = s.PhoneCodeHash
		c.mu.Unlock()
		return nil
	case *tg.AuthSentCodeSuccess:
		return nil
	default:
		return &ProtocolError{Op: "sendCode", Field: "phone_code_hash"}
	}
}

func (c *GotdClient) SignIn(ctx context.Context, phone, code, password string) (*User, error) {
	client, _, err := c.conn()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	hash := c.codeHash
	c.mu.Unlock()
	if hash == "" {
		return nil, ErrCodeNotSent
	}

	a, err := client.Auth().SignIn(ctx, phone, code, hash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		if password == "" {
			return nil, ErrPasswordNeeded
		}
		a, err = client.Auth().Password(ctx, password)
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	user, ok := a.User.(*tg.User)
	if !ok {
		return nil, &ProtocolError{Op: "signIn", Field: "user"}
	}
	c.ents.add([]tg.UserClass{user}, nil)
	u := convertUser(user)
	return &u, nil
}

func (c *GotdClient) Session(ctx context.Context) (SessionData, error) {
	data, err := (&session.Loader{Storage: c.storage}).Load(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return SessionData{DC: c.cfg.DC}, nil
	}
	if err != nil {
		return SessionData{}, fmt.Errorf("load session: %w", err)
	}
	s := SessionData{DC: data.DC, AuthKey: append([]byte(nil), data.AuthKey...)}
	if data.Addr != "" {
		if s.Host, s.Port, err = parseAddr(data.Addr); err != nil {
			return SessionData{}, &ProtocolError{Op: "session", Field: "addr"}
		}
	}
	return s, nil
}

// Restore replaces the stored session and reconnects with it.
func (c *GotdClient) Restore(ctx context.Context, s SessionData) error {
	c.Disconnect()
	if err := saveSession(ctx, c.storage, s); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if s.DC != 0 {
		c.cfg.DC = s.DC
	}
	return c.Connect(ctx)
}

func (c *GotdClient) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

func (c *GotdClient) emit(evt Event) {
	c.mu.Lock()
	handlers := append([]func(Event){}, c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (c *GotdClient) handleUpdates(_ context.Context, u tg.UpdatesClass) error {
	for _, k := range eventKinds(u) {
		c.emit(Event{Kind: k})
	}
	return nil
}

func saveSession(ctx context.Context, storage session.Storage, s SessionData) error {
	return (&session.Loader{Storage: storage}).Save(ctx, &session.Data{
		DC:        s.DC,
		Addr:      s.Addr(),
		AuthKey:   s.AuthKey,
		AuthKeyID: authKeyID(s.AuthKey),
	})
}

// dcList is the production DC list with cfg's address, if any, put first
// for cfg.DC.
func dcList(cfg Config) dcs.List {
	list := dcs.Prod()
	if cfg.DC == 0 || cfg.Host == "" || cfg.Port == 0 {
		return list
	}
	seeded := tg.DCOption{ID: cfg.DC, IPAddress: cfg.Host, Port: cfg.Port}
	list.Options = append([]tg.DCOption{seeded}, list.Options...)
	return list
}

// authKeyID is the low 64 bits of SHA1(auth_key), as MTProto defines it.
func authKeyID(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	sum := sha1.Sum(key)
	return sum[12:20]
}
