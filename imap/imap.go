// Package imap exposes the mailboxes of an IMAP account as a read-only source.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mbox-to-archive/source"
)

const (
	defaultDialAttempts = 3
	defaultDialDelay    = 2 * time.Second
	fetchBatch          = 50
)

var ErrDialFailed = errors.New("imap: dial failed")

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// Mailbox limits the walk to one mailbox and its children. Empty means all.
	Mailbox      string
	DialAttempts int
	DialDelay    time.Duration
}

// DialError reports a connection that could not be established within the
// attempt ceiling.
type DialError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("imap: dial %s failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

func (e *DialError) Is(target error) bool {
	return target == ErrDialFailed
}

type dialer func(address string, useTLS bool, options *imapclient.Options) (*imapclient.Client, error)

var dial dialer = func(address string, useTLS bool, options *imapclient.Options) (*imapclient.Client, error) {
	if useTLS {
		return imapclient.DialTLS(address, options)
	}
	return imapclient.DialInsecure(address, options)
}

type Source struct {
	opts    Options
	logger  *slog.Logger
	client  *imapclient.Client
	cleanup func()
}

// Open connects and logs in, retrying the dial a fixed number of times.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Source, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = defaultDialAttempts
	}
	if opts.DialDelay < 0 {
		opts.DialDelay = 0
	} else if opts.DialDelay == 0 {
		opts.DialDelay = defaultDialDelay
	}

	s := &Source{opts: opts, logger: logger}
	client, cleanup, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.client, s.cleanup = client, cleanup
	return s, nil
}

func (s *Source) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}
	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	for attempt := 1; attempt <= s.opts.DialAttempts; attempt++ {
		client, err = dial(address, s.opts.UseTLS, options)
		if err == nil {
			break
		}
		if s.logger != nil {
			s.logger.Warn("imap dial failed", "address", address, "attempt", attempt, "err", err)
		}
		if attempt == s.opts.DialAttempts {
			return nil, nil, &DialError{Address: address, Attempts: attempt, Err: err}
		}
		select {
		case <-ctx.Done():
			return nil, nil, &DialError{Address: address, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(s.opts.DialDelay):
		}
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "tls", s.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}
	return client, cleanup, nil
}

func (s *Source) OpenRoot() (source.Folder, error) {
	list, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	entries := make([]mailboxEntry, 0, len(list))
	for _, data := range list {
		entries = append(entries, mailboxEntry{
			name:     data.Mailbox,
			delim:    data.Delim,
			noSelect: hasAttr(data.Attrs, imapv2.MailboxAttrNoSelect),
		})
	}
	root := buildTree(entries, s.opts.Host, s.opts.Mailbox)
	root.attach(s)
	return root, nil
}

func (s *Source) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return nil
}

func hasAttr(attrs []imapv2.MailboxAttr, want imapv2.MailboxAttr) bool {
	for _, a := range attrs {
		if strings.EqualFold(string(a), string(want)) {
			return true
		}
	}
	return false
}

type mailboxEntry struct {
	name     string
	delim    rune
	noSelect bool
}

// buildTree arranges the flat LIST result into a hierarchy. Parents missing
// from the listing are added as non-selectable folders.
func buildTree(entries []mailboxEntry, rootName, only string) *folder {
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	root := &folder{name: rootName, noSelect: true}
	nodes := map[string]*folder{}
	var node func(full string, delim rune) *folder
	node = func(full string, delim rune) *folder {
		if f, ok := nodes[full]; ok {
			return f
		}
		parent, leaf := root, full
		if delim != 0 {
			if idx := strings.LastIndex(full, string(delim)); idx >= 0 {
				parent = node(full[:idx], delim)
				leaf = full[idx+1:]
			}
		}
		f := &folder{name: leaf, mailbox: full, noSelect: true}
		nodes[full] = f
		parent.children = append(parent.children, f)
		return f
	}

	for _, e := range entries {
		if only != "" && e.name != only && !strings.HasPrefix(e.name, only+string(e.delim)) {
			continue
		}
		f := node(e.name, e.delim)
		f.noSelect = e.noSelect
	}
	return root
}

type folder struct {
	source.StateGuard
	src      *Source
	name     string
	mailbox  string
	noSelect bool
	children []*folder
	count    uint32
}

func (f *folder) attach(s *Source) {
	f.src = s
	for _, c := range f.children {
		c.attach(s)
	}
}

func (f *folder) Name() string        { return f.name }
func (f *folder) HoldsMessages() bool { return !f.noSelect }
func (f *folder) HoldsFolders() bool  { return len(f.children) > 0 }

func (f *folder) Open() error {
	if err := f.Enter(); err != nil {
		return err
	}
	f.count = 0
	if f.noSelect {
		return nil
	}
	data, err := f.src.client.Select(f.mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		f.Leave()
		return fmt.Errorf("select %s: %w", f.mailbox, err)
	}
	f.count = data.NumMessages
	return nil
}

func (f *folder) Close() error {
	f.Leave()
	return nil
}

func (f *folder) Subfolders() ([]source.Folder, error) {
	out := make([]source.Folder, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out, nil
}

func (f *folder) Messages() (source.MessageIterator, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	return &fetchIterator{folder: f, next: 1}, nil
}

// fetchIterator fetches messages in sequence-number batches.
type fetchIterator struct {
	folder  *folder
	next    uint32
	batch   []source.MessageHandle
	current source.MessageHandle
	err     error
}

func (it *fetchIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if len(it.batch) == 0 {
		if it.next > it.folder.count {
			it.current = nil
			return false
		}
		if err := it.fill(); err != nil {
			it.err = err
			it.current = nil
			return false
		}
		if len(it.batch) == 0 {
			it.current = nil
			return false
		}
	}
	it.current, it.batch = it.batch[0], it.batch[1:]
	return true
}

func (it *fetchIterator) fill() error {
	start := it.next
	stop := min(start+fetchBatch-1, it.folder.count)
	var seqSet imapv2.SeqSet
	seqSet.AddRange(start, stop)
	it.next = stop + 1

	section := &imapv2.FetchItemBodySection{Peek: true}
	options := &imapv2.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		RFC822Size:   true,
		UID:          true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}
	msgs, err := it.folder.src.client.Fetch(seqSet, options).Collect()
	if err != nil {
		return fmt.Errorf("fetch %s %d:%d: %w", it.folder.mailbox, start, stop, err)
	}
	for _, buf := range msgs {
		raw := buf.FindBodySection(section)
		label := fmt.Sprintf("%s uid %d", it.folder.mailbox, buf.UID)
		it.batch = append(it.batch, &message{
			Message: source.NewMessage(raw, label),
			native:  nativeFields(buf.Envelope, buf.InternalDate, buf.RFC822Size),
		})
	}
	return nil
}

func (it *fetchIterator) Handle() source.MessageHandle { return it.current }
func (it *fetchIterator) Err() error                   { return it.err }

// message adds the server-side envelope as native view.
type message struct {
	*source.Message
	native *source.NativeFields
}

func (m *message) Native() (*source.NativeFields, error) {
	return m.native, nil
}

func nativeFields(env *imapv2.Envelope, internalDate time.Time, size int64) *source.NativeFields {
	n := &source.NativeFields{ReceivedAt: internalDate, Size: size}
	if env == nil {
		return n
	}
	n.Subject = env.Subject
	n.MessageID = env.MessageID
	n.SentAt = env.Date
	if len(env.Sender) > 0 {
		n.Sender = nativeAddress(env.Sender[0])
	}
	if len(env.From) > 0 {
		n.SentRepresenting = nativeAddress(env.From[0])
	}
	for _, group := range []struct {
		kind source.RecipientType
		list []imapv2.Address
	}{
		{source.RecipientTo, env.To},
		{source.RecipientCc, env.Cc},
		{source.RecipientBcc, env.Bcc},
	} {
		for _, a := range group.list {
			na := nativeAddress(a)
			if na.Empty() {
				continue
			}
			n.Recipients = append(n.Recipients, source.NativeRecipient{Type: group.kind, Name: na.Name, Address: na.Address})
		}
	}
	for _, a := range env.ReplyTo {
		if na := nativeAddress(a); !na.Empty() {
			n.ReplyTo = append(n.ReplyTo, na.Address)
		}
	}
	return n
}

func nativeAddress(a imapv2.Address) source.NativeAddress {
	if a.Mailbox == "" || a.Host == "" {
		return source.NativeAddress{}
	}
	return source.NativeAddress{Name: a.Name, Address: a.Mailbox + "@" + a.Host, Type: source.AddressTypeSMTP}
}
