// Package seed fills a repository with demo users, posts, comments and
// stories. It goes through the regular services so that every index, counter
// and mirror entry is written the way live traffic writes it. Intended for
// development and testing only.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"strings"
	"unicode"

	"vortexx/internal/media"
	"vortexx/internal/service"
	"vortexx/internal/session"

	"github.com/brianvoe/gofakeit/v6"
)

// Services are the services the seeder drives.
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Posts    *service.PostService
	Comments *service.CommentService
	Stories  *service.StoryService
	Sessions *session.Manager
}

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	NumComments int
	NumLikes    int
	// NumStories requires the blob host: every story uploads a generated image.
	NumStories int
	// Password is shared by every seeded account.
	Password string
	// Seed makes the generated content reproducible. Zero picks a random seed.
	Seed int64
}

// Result lists what was created.
type Result struct {
	Users    []string
	Posts    []string
	Comments int
	Likes    int
	Stories  int
}

// Seeder creates demo content.
type Seeder struct {
	svc   Services
	opts  Options
	faker *gofakeit.Faker

	sessions map[string]*session.Session
}

// NewSeeder creates a Seeder. Zero counts fall back to small defaults.
func NewSeeder(svc Services, opts Options) *Seeder {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 5
	}
	if opts.Password == "" {
		opts.Password = "password123"
	}
	return &Seeder{
		svc:      svc,
		opts:     opts,
		faker:    gofakeit.New(opts.Seed),
		sessions: make(map[string]*session.Session),
	}
}

// Run creates users first, then posts, likes, comments and stories.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result

	for i := 0; i < s.opts.NumUsers; i++ {
		username, err := s.createUser(ctx, i)
		if err != nil {
			return res, fmt.Errorf("seed user %d: %w", i, err)
		}
		res.Users = append(res.Users, username)
	}
	log.Printf("seeded %d users", len(res.Users))

	for i := 0; i < s.opts.NumPosts; i++ {
		author := s.pick(res.Users)
		post, err := s.svc.Posts.CreatePost(ctx, s.sessions[author], service.CreatePostInput{
			Caption: s.faker.Sentence(s.faker.Number(4, 14)),
		})
		if err != nil {
			return res, fmt.Errorf("seed post %d: %w", i, err)
		}
		res.Posts = append(res.Posts, post.ID)
	}

	if len(res.Posts) > 0 {
		for i := 0; i < s.opts.NumLikes; i++ {
			post, err := s.svc.Posts.ToggleLike(ctx, s.sessions[s.pick(res.Users)], s.pick(res.Posts))
			if err != nil {
				return res, fmt.Errorf("seed like %d: %w", i, err)
			}
			// a repeated pick unlikes; count only what ends up liked
			if post.Liked {
				res.Likes++
			} else {
				res.Likes--
			}
		}

		for i := 0; i < s.opts.NumComments; i++ {
			_, err := s.svc.Comments.AddComment(ctx, s.sessions[s.pick(res.Users)], s.pick(res.Posts), s.faker.Sentence(s.faker.Number(3, 12)))
			if err != nil {
				return res, fmt.Errorf("seed comment %d: %w", i, err)
			}
			res.Comments++
		}
	}

	for i := 0; i < s.opts.NumStories; i++ {
		if err := s.createStory(ctx, s.pick(res.Users)); err != nil {
			return res, fmt.Errorf("seed story %d: %w", i, err)
		}
		res.Stories++
	}

	log.Printf("seeded %d posts, %d likes, %d comments, %d stories", len(res.Posts), res.Likes, res.Comments, res.Stories)
	return res, nil
}

func (s *Seeder) createUser(ctx context.Context, i int) (string, error) {
	name := s.faker.Name()
	username := fmt.Sprintf("%s_%d", usernameFrom(s.faker.Username()), i)

	auth, err := s.svc.Auth.Register(ctx, service.RegisterInput{
		Name:            name,
		Username:        username,
		Password:        s.opts.Password,
		ConfirmPassword: s.opts.Password,
	})
	if err != nil {
		return "", err
	}
	sess, err := s.svc.Sessions.Resolve(ctx, auth.Token)
	if err != nil {
		return "", err
	}
	s.sessions[username] = sess

	bio := s.faker.HipsterSentence(s.faker.Number(5, 12))
	if _, err := s.svc.Users.UpdateProfile(ctx, sess, service.UpdateProfileInput{Bio: &bio}); err != nil {
		return "", err
	}
	return username, nil
}

// createStory verifies the author when needed and posts a generated image.
func (s *Seeder) createStory(ctx context.Context, username string) error {
	if _, err := s.svc.Users.SetVerified(ctx, username, true); err != nil {
		return err
	}
	data, err := swatch(s.faker.Uint8(), s.faker.Uint8(), s.faker.Uint8())
	if err != nil {
		return err
	}
	_, err = s.svc.Stories.CreateStory(ctx, s.sessions[username], service.CreateStoryInput{
		Caption: s.faker.Phrase(),
		Media:   &media.File{Name: "story.png", ContentType: "image/png", Data: data},
	})
	return err
}

func (s *Seeder) pick(items []string) string {
	return items[s.faker.Number(0, len(items)-1)]
}

// usernameFrom keeps the characters a username may contain.
func usernameFrom(raw string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, raw)
	if clean == "" {
		clean = "user"
	}
	if len(clean) > 20 {
		clean = clean[:20]
	}
	return strings.ToLower(clean)
}

// swatch renders a small solid-color PNG.
func swatch(r, g, b uint8) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	fill := color.RGBA{R: r, G: g, B: b, A: 255}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
