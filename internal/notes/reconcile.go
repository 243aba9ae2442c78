package notes

import (
	"context"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/obs"
)

// newImageID generates image ids. Replaced with a counter in tests.
var newImageID = func() string {
	return uuid.NewString()
}

// ActionKind is the outcome of reconciling one image descriptor.
type ActionKind int

const (
	// ActionKeep updates alt text only; id and blob are unchanged.
	ActionKeep ActionKind = iota
	// ActionReplace stores new bytes under a new id.
	ActionReplace
	// ActionCreate adds a new image to the note.
	ActionCreate
)

func (k ActionKind) String() string {
	switch k {
	case ActionKeep:
		return "keep"
	case ActionReplace:
		return "replace"
	case ActionCreate:
		return "create"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is one planned image change. Position is the slot in the final image order.
type Action struct {
	Kind     ActionKind
	Position int
	// Current is the existing image for keep and replace.
	Current *Image
	AltText string
	// File is set for replace and create.
	File *FileUpload
}

// ImagePlan is the pure result of matching descriptors against a note's images.
type ImagePlan struct {
	Actions []Action
	// Removed lists current images no descriptor names.
	Removed []Image
}

// Writes reports how many blob writes the plan needs.
func (p *ImagePlan) Writes() int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind != ActionKeep {
			n++
		}
	}
	return n
}

// PlanImages matches descriptors against the note's current images.
//
//	existing id + file    -> replace (new id, new blob)
//	existing id, no file  -> keep (alt text only)
//	no id + file          -> create
//	no id, no file        -> dropped
//
// Nil descriptors are skipped. A zero-length file counts as no file. An id that
// is not one of current fails with NotFound; naming the same id twice fails
// with InvalidArgument. Nothing is written.
func PlanImages(current []Image, descriptors []*ImageDescriptor) (*ImagePlan, error) {
	byID := make(map[string]*Image, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	plan := &ImagePlan{}
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d == nil {
			continue
		}
		hasFile := d.File.Present()

		if d.ID == "" {
			if !hasFile {
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				Kind:     ActionCreate,
				Position: len(plan.Actions),
				AltText:  d.AltText,
				File:     d.File,
			})
			continue
		}

		existing, ok := byID[d.ID]
		if !ok {
			return nil, errs.New(errs.NotFound, fmt.Sprintf("image %s not found on note", d.ID))
		}
		if seen[d.ID] {
			return nil, errs.Validation("invalid input", map[string][]string{
				"images": {fmt.Sprintf("Image %s is listed more than once", d.ID)},
			})
		}
		seen[d.ID] = true

		action := Action{
			Kind:     ActionKeep,
			Position: len(plan.Actions),
			Current:  existing,
			AltText:  d.AltText,
		}
		if hasFile {
			action.Kind = ActionReplace
			action.File = d.File
		}
		plan.Actions = append(plan.Actions, action)
	}

	for _, img := range current {
		if !seen[img.ID] {
			plan.Removed = append(plan.Removed, img)
		}
	}
	return plan, nil
}

// ResolvedImage is an action with its blob written and final id assigned.
type ResolvedImage struct {
	Kind ActionKind
	// PrevID is the id before the update; empty for creates.
	PrevID      string
	ID          string
	BlobRef     string
	ContentType string
	AltText     string
	SizeBytes   int64
	Position    int
}

// Resolution is a plan whose blobs are stored. Written must be deleted if the
// update does not commit; Obsolete may be deleted once it does.
type Resolution struct {
	Images   []ResolvedImage
	Written  []string
	Obsolete []string
	Removed  []Image
}

// ResolveImages writes the plan's new blobs concurrently. If any write fails the
// blobs already written are deleted and the error is returned as Internal.
func ResolveImages(ctx context.Context, store blob.Store, plan *ImagePlan) (*Resolution, error) {
	res := &Resolution{
		Images:  make([]ResolvedImage, len(plan.Actions)),
		Removed: plan.Removed,
	}

	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range plan.Actions {
		r := ResolvedImage{
			Kind:     a.Kind,
			AltText:  a.AltText,
			Position: a.Position,
		}
		if a.Current != nil {
			r.PrevID = a.Current.ID
			r.ID = a.Current.ID
			r.BlobRef = a.Current.BlobRef
			r.ContentType = a.Current.ContentType
			r.SizeBytes = a.Current.SizeBytes
		}
		res.Images[i] = r
		if a.Kind == ActionKeep {
			continue
		}

		file := a.File
		g.Go(func() error {
			contentType := detectContentType(file)
			ref, err := store.Write(gctx, file.Data, file.Name, contentType)
			if err != nil {
				return fmt.Errorf("write image %q: %w", file.Name, err)
			}
			mu.Lock()
			written = append(written, ref)
			mu.Unlock()

			res.Images[i].ID = newImageID()
			res.Images[i].BlobRef = ref
			res.Images[i].ContentType = contentType
			res.Images[i].SizeBytes = file.Size()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		discardBlobs(ctx, store, written)
		return nil, errs.Wrap(errs.Internal, "failed to store image", err)
	}

	res.Written = written
	for _, r := range res.Images {
		if r.Kind == ActionReplace {
			if prev := plan.Actions[r.Position].Current; prev != nil {
				res.Obsolete = append(res.Obsolete, prev.BlobRef)
			}
		}
	}
	for _, img := range plan.Removed {
		res.Obsolete = append(res.Obsolete, img.BlobRef)
	}
	return res, nil
}

// detectContentType trusts the declared type unless it is missing or generic.
func detectContentType(f *FileUpload) string {
	declared := f.ContentType
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(f.Data).String()
}

// discardBlobs deletes refs best-effort. It runs even when ctx is cancelled.
func discardBlobs(ctx context.Context, store blob.Store, refs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := store.Delete(ctx, ref); err != nil {
			obs.From(ctx).With("pkg", "notes").Warn("blob_delete_failed", "ref", ref, "error", err)
		}
	}
}
