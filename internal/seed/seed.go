// Package seed loads the demo users and notes.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/notes"
	"github.com/kuitang/epic-notes/internal/obs"
)

type noteSeed struct {
	id, title, content string
	images             []imageSeed
}

type imageSeed struct {
	name, alt string
	fill      color.RGBA
}

type userSeed struct {
	id, email, username, name string
	notes                     []noteSeed
}

const honeyFact = "Honey never spoils. Archaeologists have found pots of honey in ancient Egyptian tombs that are over 3,000 years old and still perfectly edible."

var users = []userSeed{
	{
		id:       "9d6eba59daa2fc2078cf8205cd451041",
		email:    "johndoe@test.dev",
		username: "johndoe",
		name:     "John",
		notes: []noteSeed{
			{id: "d27a197e", title: "Interesting Fact", content: honeyFact},
			{id: "e3f4b5c2", title: "Curious Animal", content: "A group of flamingos is called a 'flamboyance'."},
			{id: "f1a2b3c4", title: "Space Trivia", content: "There are more stars in the universe than grains of sand on all the Earth's beaches combined."},
			{id: "a4b5c6d7", title: "Historical Tidbit", content: "The shortest war in history was between Britain and Zanzibar on August 27, 1896. Zanzibar surrendered after 38 minutes."},
			{id: "b5c6d7e8", title: "Human Body", content: "The human body contains enough fat to make seven bars of soap."},
			{id: "c6d7e8f9", title: "Ocean Fact", content: "More people have been to the moon than to the Mariana Trench, the deepest part of the Earth's oceans."},
			{id: "d7e8f9a1", title: "World Records", content: "The longest time between two twins being born is 87 days."},
			{id: "e8f9a1b2", title: "Food Fact", content: "Bananas are berries, but strawberries are not."},
			{id: "f9a1b2c3", title: "Geographical Wonder", content: "Mount Everest is the highest point on Earth, but Mauna Kea in Hawaii is the tallest mountain when measured from its base underwater."},
			{id: "a1b2c3d4", title: "Animal Behavior", content: "Octopuses have three hearts and blue blood."},
			{id: "b2c3d4e5", title: "Nature's Phenomenon", content: "A day on Venus is longer than a year on Venus."},
			{id: "c3d4e5f6", title: "Technological Feat", content: "The first 1GB hard disk, announced in 1980, weighed over 500 pounds and cost $40,000."},
		},
	},
	{
		email:    "testuser@testUser.com",
		username: "testUser",
		name:     "testUser",
		notes: []noteSeed{
			{
				id:      "a5c8f34b",
				title:   "Interesting Fact",
				content: honeyFact,
				images: []imageSeed{
					{name: "bird.png", alt: "A beautiful bird", fill: color.RGBA{R: 214, G: 120, B: 40, A: 255}},
					{name: "bridge.png", alt: "San Francisco bridge", fill: color.RGBA{R: 192, G: 54, B: 44, A: 255}},
				},
			},
		},
	},
}

// Result reports what Run created.
type Result struct {
	Users int
	Notes int
}

// Run creates the demo users and their notes. Users that already exist are
// skipped along with their notes, so Run is safe to repeat.
func Run(ctx context.Context, svc *notes.Service) (Result, error) {
	log := obs.Pkg("seed")
	var res Result

	for _, u := range users {
		_, err := svc.GetUserByUsername(ctx, u.username)
		if err == nil {
			log.Info("seed_user_exists", "username", u.username)
			continue
		}
		if !errs.Is(err, errs.NotFound) {
			return res, err
		}

		if _, err := svc.CreateUser(ctx, notes.CreateUserCommand{
			ID:       u.id,
			Email:    u.email,
			Username: u.username,
			Name:     u.name,
		}); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.username, err)
		}
		res.Users++

		for _, n := range u.notes {
			cmd := notes.CreateNoteCommand{
				ID:       n.id,
				Username: u.username,
				Title:    n.title,
				Content:  n.content,
			}
			for _, img := range n.images {
				data, err := solidPNG(img.fill)
				if err != nil {
					return res, err
				}
				cmd.Images = append(cmd.Images, &notes.ImageDescriptor{
					AltText: img.alt,
					File:    &notes.FileUpload{Name: img.name, ContentType: "image/png", Data: data},
				})
			}
			if _, err := svc.CreateNote(ctx, cmd); err != nil {
				return res, fmt.Errorf("seed note %s: %w", n.id, err)
			}
			res.Notes++
		}
		log.Info("seed_user_created", "username", u.username, "notes", len(u.notes))
	}
	return res, nil
}

func solidPNG(fill color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
