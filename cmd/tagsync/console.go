package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/gateway"
	"github.com/time7/tagsync/pkg/identity"
	"github.com/time7/tagsync/pkg/polling"
	"github.com/time7/tagsync/pkg/reconcile"
	"github.com/time7/tagsync/pkg/search"
	"github.com/time7/tagsync/pkg/storage"
)

type scanFeed interface {
	Snapshot() polling.Snapshot
	SetInterval(d time.Duration) error
}

type workflows interface {
	Classify(scans []gateway.ScanRecord) []reconcile.Item
	Select(rec gateway.ScanRecord) reconcile.Workflow
	Register(ctx context.Context, p storage.ProductRecord) error
	Edit(ctx context.Context, p storage.ProductRecord) error
	AddPhoto(ctx context.Context, tid, photoURL string) error
}

type resolver interface {
	Search(ctx context.Context, query string) search.Result
	Lookup(ctx context.Context, tid string) (storage.ProductRecord, *storage.PhotoReference, error)
}

// console reads one command per line:
//
//	scans                          list tags in range
//	open <tid>                     interact with a tag in range
//	register <tid> <origin> <desc> register the open unregistered tag
//	edit <tid> <origin> <desc>     edit a registered tag in range
//	photo <tid> <url>              attach a photo to a registered tag in range
//	interval <ms>                  change the poll period
//	clear                          reset the search
//	<anything else>                search by tid or epc
type console struct {
	log        *zap.Logger
	engine     scanFeed
	reconciler workflows
	resolver   resolver
	out        io.Writer
}

func (c *console) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return
			}
			c.handle(ctx, line)
		}
	}
}

func (c *console) handle(ctx context.Context, line string) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return
	case "scans":
		c.printScans()
	case "open":
		c.open(ctx, rest)
	case "register":
		c.register(ctx, rest)
	case "edit":
		c.edit(ctx, rest)
	case "photo":
		c.photo(ctx, rest)
	case "interval":
		ms, err := strconv.Atoi(rest)
		if err == nil {
			err = c.engine.SetInterval(time.Duration(ms) * time.Millisecond)
		}
		if err != nil {
			fmt.Fprintf(c.out, "invalid interval %q: %v\n", rest, err)
		}
	case "clear":
		c.resolver.Search(ctx, "")
	case "search":
		c.search(ctx, rest)
	default:
		c.search(ctx, line)
	}
}

func (c *console) printScans() {
	snap := c.engine.Snapshot()
	switch {
	case snap.Status == polling.StatusError:
		fmt.Fprintf(c.out, "Gateway Offline (%s)\n", snap.Error)
		return
	case snap.Status == polling.StatusConnecting:
		fmt.Fprintln(c.out, "Connecting...")
		return
	case !snap.ReaderConnected:
		fmt.Fprintln(c.out, "Reader disconnected")
	}

	items := c.reconciler.Classify(snap.Scans)
	if len(items) == 0 {
		fmt.Fprintln(c.out, "No item in range")
		return
	}
	for _, it := range items {
		auth := "NOT AUTHENTIC"
		if it.Auth {
			auth = "authentic"
		}
		reg := "unregistered"
		if it.Registered {
			reg = "registered"
		}
		fmt.Fprintf(c.out, "%s  epc=%s  %s  %s  first seen %s\n",
			it.TIDHex, it.EPCHex, auth, reg, it.FirstSeen.Format(time.RFC3339))
	}
}

func (c *console) find(tid string) (gateway.ScanRecord, bool) {
	for _, rec := range c.engine.Snapshot().Scans {
		if identity.Equal(rec.TIDHex, tid) {
			return rec, true
		}
	}
	return gateway.ScanRecord{}, false
}

func (c *console) open(ctx context.Context, tid string) {
	rec, ok := c.find(tid)
	if !ok {
		fmt.Fprintf(c.out, "%s is not in range\n", tid)
		return
	}

	switch c.reconciler.Select(rec) {
	case reconcile.WorkflowNone:
		fmt.Fprintf(c.out, "%s is not authentic; display only\n", rec.TIDHex)
	case reconcile.WorkflowRegister:
		fmt.Fprintf(c.out, "%s is not registered; use: register %s <origin> <description>\n", rec.TIDHex, rec.TIDHex)
	case reconcile.WorkflowView:
		p, photo, err := c.resolver.Lookup(ctx, rec.TIDHex)
		if err != nil {
			fmt.Fprintf(c.out, "lookup %s: %v\n", rec.TIDHex, err)
			return
		}
		c.printProduct(p, photo)
	}
}

func (c *console) register(ctx context.Context, args string) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		fmt.Fprintln(c.out, "usage: register <tid> <origin> <description>")
		return
	}
	rec, ok := c.find(fields[0])
	if !ok {
		fmt.Fprintf(c.out, "%s is not in range\n", fields[0])
		return
	}
	if c.reconciler.Select(rec) != reconcile.WorkflowRegister {
		fmt.Fprintf(c.out, "%s cannot be registered\n", rec.TIDHex)
		return
	}

	err := c.reconciler.Register(ctx, storage.ProductRecord{
		TID:         rec.TIDHex,
		EPC:         rec.EPCHex,
		Origin:      fields[1],
		Description: fields[2],
		ProducedOn:  time.Now().UTC().Truncate(24 * time.Hour),
	})
	if err != nil {
		fmt.Fprintf(c.out, "registration failed, try again: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s registered\n", rec.TIDHex)
}

func (c *console) edit(ctx context.Context, args string) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		fmt.Fprintln(c.out, "usage: edit <tid> <origin> <description>")
		return
	}
	rec, ok := c.find(fields[0])
	if !ok {
		fmt.Fprintf(c.out, "%s is not in range\n", fields[0])
		return
	}
	if c.reconciler.Select(rec) != reconcile.WorkflowView {
		fmt.Fprintf(c.out, "%s cannot be edited\n", rec.TIDHex)
		return
	}

	p, _, err := c.resolver.Lookup(ctx, rec.TIDHex)
	if err == nil {
		p.Origin = fields[1]
		p.Description = fields[2]
		err = c.reconciler.Edit(ctx, p)
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(c.out, "%s is no longer registered\n", rec.TIDHex)
	case err != nil:
		fmt.Fprintf(c.out, "edit failed, try again: %v\n", err)
	default:
		fmt.Fprintf(c.out, "%s updated\n", rec.TIDHex)
	}
}

func (c *console) photo(ctx context.Context, args string) {
	tid, photoURL, _ := strings.Cut(args, " ")
	photoURL = strings.TrimSpace(photoURL)
	if tid == "" || photoURL == "" {
		fmt.Fprintln(c.out, "usage: photo <tid> <url>")
		return
	}
	rec, ok := c.find(tid)
	if !ok {
		fmt.Fprintf(c.out, "%s is not in range\n", tid)
		return
	}
	if c.reconciler.Select(rec) != reconcile.WorkflowView {
		fmt.Fprintf(c.out, "%s is not registered\n", rec.TIDHex)
		return
	}
	if err := c.reconciler.AddPhoto(ctx, rec.TIDHex, photoURL); err != nil {
		fmt.Fprintf(c.out, "adding photo failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "photo added to %s\n", rec.TIDHex)
}

func (c *console) search(ctx context.Context, query string) {
	res := c.resolver.Search(ctx, query)
	switch {
	case res.Err != nil:
		fmt.Fprintf(c.out, "search failed: %v\n", res.Err)
	case res.ShowNotFound():
		fmt.Fprintln(c.out, "No match")
	case res.Product != nil:
		c.printProduct(*res.Product, res.Photo)
	}
}

func (c *console) printProduct(p storage.ProductRecord, photo *storage.PhotoReference) {
	fmt.Fprintf(c.out, "tid=%s epc=%s\n%s\n", p.TID, p.EPC, p.Description)
	if p.Origin != "" || !p.ProducedOn.IsZero() {
		fmt.Fprintf(c.out, "%s  %s\n", p.Origin, formatDate(p.ProducedOn))
	}
	if photo != nil {
		fmt.Fprintf(c.out, "photo %s (%s)\n", photo.PhotoURL, photo.CreatedAt.Format(time.RFC3339))
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

type scanHistory interface {
	RecentScans(ctx context.Context, limit int) ([]storage.ScanLogEntry, error)
}

func printHistory(ctx context.Context, w io.Writer, h scanHistory, limit int) error {
	entries, err := h.RecentScans(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No logs yet")
		return nil
	}
	for _, e := range entries {
		info := ""
		if e.Info != nil {
			info = *e.Info
		}
		fmt.Fprintf(w, "%s  %s  auth=%t  %s\n", e.SeenAt.Format(time.RFC3339), e.TID, e.Auth, info)
	}
	return nil
}
