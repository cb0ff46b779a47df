package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dhcgn/mbox-to-archive/archive"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/model"
	"github.com/dhcgn/mbox-to-archive/reconcile"
	"github.com/dhcgn/mbox-to-archive/source"
	"github.com/dhcgn/mbox-to-archive/stats"
	"github.com/dhcgn/mbox-to-archive/walker"
)

// Description levels written into unit descriptors.
const (
	levelFonds     = "Fonds"
	levelRecordGrp = "RecordGrp"
	levelItem      = "Item"
)

// materializer is the walker.Sink of one run.
type materializer struct {
	ctx      context.Context
	o        *Orchestrator
	diag     diag.Sink
	rootUnit *archive.Unit
	report   *Report
	paths    map[*archive.Unit]string
}

func (m *materializer) nestedRoot(u *archive.Unit) bool {
	return m.o.opts.RootUnit != nil && u == m.rootUnit
}

func (m *materializer) EnterFolder(parent *archive.Unit, f source.Folder) (*archive.Unit, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}
	if m.nestedRoot(parent) {
		m.paths[parent] = f.Name()
		return parent, nil
	}

	m.report.Folders++
	path := f.Name()
	if p, ok := m.paths[parent]; ok {
		path = p + "/" + f.Name()
	}
	unit := m.o.namer.NewUnit(parent.Dir(), archive.KindFolder, f.Name())
	m.paths[unit] = path
	m.o.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeFolder, Folder: path, Path: unit.Dir()})
	return unit, nil
}

func (m *materializer) AddMessage(folder *archive.Unit, msg *model.Message, h source.MessageHandle) error {
	if err := m.ctx.Err(); err != nil {
		return err
	}
	path := m.paths[folder]

	action, err := m.o.opts.Policy.Decide(msg, h)
	if err != nil {
		return walker.Decode(fmt.Errorf("policy: %w", err))
	}
	switch action {
	case ActionExclude:
		m.o.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeFiltered, Folder: path,
			MessageID: msg.MessageID, Subject: msg.Subject, From: msg.From})
		return walker.ErrExcluded
	case ActionCount:
		m.emitMessage(path, msg)
		return nil
	}

	content, err := m.read(msg, h)
	if err != nil {
		return walker.Decode(err)
	}
	m.emitMessage(path, msg)

	unit := m.o.namer.NewUnit(folder.Dir(), archive.KindMessage, h.Label())
	unit.MarkMessage()
	unit.AddObject(h.Label()+".eml", archive.RoleBinaryMaster, 1, content.raw)
	if text := textContent(msg.Bodies); text != "" {
		unit.AddObject(h.Label()+".txt", archive.RoleTextContent, 1, []byte(text))
	}

	for _, a := range content.attachments {
		if err := m.attachment(unit, msg, a); err != nil {
			return err
		}
	}

	messageMetadata(unit.Metadata(), msg)
	return m.write(unit, manifest.Entry{
		Kind:      manifest.KindMessage,
		Folder:    path,
		MessageID: msg.MessageID,
		Subject:   msg.Subject,
		From:      msg.From,
		Date:      msg.BestDate(),
	})
}

func (m *materializer) emitMessage(path string, msg *model.Message) {
	if m.o.opts.depth > 0 {
		return
	}
	m.o.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeMessage, Folder: path,
		MessageID: msg.MessageID, Subject: msg.Subject, From: msg.From})
}

type pendingAttachment struct {
	info     source.AttachmentInfo
	label    string
	data     []byte
	embedded source.MessageHandle
}

type messageContent struct {
	raw         []byte
	attachments []pendingAttachment
}

// read loads everything the message unit needs before anything is written,
// so a decode failure leaves no partial unit behind.
func (m *materializer) read(msg *model.Message, h source.MessageHandle) (messageContent, error) {
	var c messageContent

	raw, err := h.Raw()
	if err != nil {
		return c, fmt.Errorf("raw message: %w", err)
	}
	c.raw = raw

	bodies, err := h.Bodies()
	if err != nil {
		return c, fmt.Errorf("bodies: %w", err)
	}
	msg.Bodies = bodies

	atts, err := h.Attachments()
	if err != nil {
		return c, fmt.Errorf("attachments: %w", err)
	}
	for i, a := range atts {
		p := pendingAttachment{info: a.Info(), label: a.Info().Filename}
		if p.label == "" {
			p.label = fmt.Sprintf("attachment %d", i+1)
		}
		if inner, ok := a.Embedded(); ok {
			p.embedded = inner
		} else {
			rc, err := a.Open()
			if err != nil {
				return c, fmt.Errorf("open attachment %q: %w", p.label, err)
			}
			p.data, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return c, fmt.Errorf("read attachment %q: %w", p.label, err)
			}
		}
		c.attachments = append(c.attachments, p)
	}
	return c, nil
}

func (m *materializer) attachment(parent *archive.Unit, msg *model.Message, p pendingAttachment) error {
	att := model.Attachment{
		Filename:   p.info.Filename,
		CreatedAt:  p.info.CreatedAt,
		ModifiedAt: p.info.ModifiedAt,
		MimeTag:    p.info.MimeTag,
		ContentID:  p.info.ContentID,
		Kind:       model.AttachmentInline,
	}

	holder := m.o.namer.NewUnit(parent.Dir(), archive.KindAttachment, p.label)
	meta := holder.Metadata()
	meta.Add("DescriptionLevel", levelItem)
	meta.Add("Title", p.label)
	meta.AddDate("CreatedDate", p.info.CreatedAt)
	meta.AddDate("TransactedDate", p.info.ModifiedAt)
	meta.Add("MimeType", p.info.MimeTag)
	meta.Add("ContentId", p.info.ContentID)

	if p.embedded != nil {
		att.Kind = model.AttachmentEmbedded
		holder.MarkMessage()
		rep, err := m.o.nested(m.ctx, holder, p.embedded.Label(), p.embedded, m.diag)
		if err != nil {
			return fmt.Errorf("embedded message %q: %w", p.label, err)
		}
		m.report.Written += rep.Written
		att.Content = model.NestedUnit{Unit: holder, Messages: rep.Messages}
	} else {
		att.Content = model.RawBytes(p.data)
		holder.AddObject(p.label, archive.RoleBinaryMaster, 1, p.data)
	}
	msg.Attachments = append(msg.Attachments, att)

	return m.write(holder, manifest.Entry{
		Kind:      manifest.KindAttachment,
		Folder:    m.paths[parent],
		MessageID: msg.MessageID,
		Subject:   p.label,
	})
}

func messageMetadata(meta *archive.Metadata, msg *model.Message) {
	meta.Add("DescriptionLevel", levelItem)
	meta.Add("Title", msg.Subject)
	if reconcile.IsPlaceholderID(msg.MessageID) {
		meta.AddAttr("OriginatingSystemId", "type", "placeholder", msg.MessageID)
	} else {
		meta.Add("OriginatingSystemId", msg.MessageID)
	}
	meta.AddPerson("Writer", msg.From)
	meta.AddPersons("Addressee", msg.To)
	meta.AddPersons("Recipient", msg.Cc)
	meta.AddPersons("BlindCopyRecipient", msg.Bcc)
	for _, r := range msg.ReplyTo {
		meta.Add("ReplyTo", r)
	}
	meta.Add("ReturnPath", msg.ReturnPath)
	meta.AddDate("SentDate", msg.SentAt)
	meta.AddDate("ReceivedDate", msg.ReceivedAt)
	meta.Add("InReplyTo", msg.InReplyTo)
	for _, r := range msg.References {
		meta.Add("References", r)
	}
}

func folderMetadata(meta *archive.Metadata, level, title string, st model.FolderStats) {
	meta.Add("DescriptionLevel", level)
	meta.Add("Title", title)
	meta.AddDate("StartDate", st.Dates.Earliest)
	meta.AddDate("EndDate", st.Dates.Latest)
}

// LeaveFolder writes the folder unit. A folder without messages or
// subfolders gets an empty descriptor.
func (m *materializer) LeaveFolder(unit *archive.Unit, f source.Folder, st model.FolderStats) error {
	if m.nestedRoot(unit) || !m.o.writes() {
		return nil
	}
	if st.Messages > 0 || st.Subfolders > 0 {
		folderMetadata(unit.Metadata(), levelRecordGrp, f.Name(), st)
	}
	return m.write(unit, manifest.Entry{Kind: manifest.KindFolder, Folder: m.paths[unit]})
}

func (m *materializer) writeRoot(unit *archive.Unit, st model.FolderStats) error {
	folderMetadata(unit.Metadata(), levelFonds, m.o.opts.RootName, st)
	return m.write(unit, manifest.Entry{Kind: manifest.KindFolder})
}

// write persists u and journals it.
func (m *materializer) write(u *archive.Unit, e manifest.Entry) error {
	if err := u.Write(); err != nil {
		return err
	}
	m.report.Written++

	e.Unit = u.Name()
	e.Path = u.Dir()
	for _, o := range u.Objects() {
		sum := sha256.Sum256(o.Data)
		e.Objects = append(e.Objects, manifest.Object{
			Name:   u.ObjectFilename(o),
			Role:   o.Role,
			SHA256: hex.EncodeToString(sum[:]),
			Size:   int64(len(o.Data)),
		})
	}
	m.o.emit(stats.Event{Stage: stats.StageWrite, Type: stats.EventTypeWritten, Folder: e.Folder,
		MessageID: e.MessageID, Path: e.Path, Detail: string(e.Kind)})

	if m.o.opts.Recorder != nil {
		if err := m.o.opts.Recorder.Record(m.ctx, e); err != nil {
			return &RunError{Op: "record unit", Path: e.Path, Err: err}
		}
	}
	return nil
}
