// Command seed fills the data repository with demo content.
package main

import (
	"context"
	"flag"
	"log"

	"vortexx/internal/bootstrap"
	"vortexx/internal/config"
	"vortexx/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	numPosts := flag.Int("posts", 30, "Number of posts to create")
	numComments := flag.Int("comments", 60, "Number of comments to create")
	numLikes := flag.Int("likes", 80, "Number of like toggles to apply")
	numStories := flag.Int("stories", 0, "Number of stories to create (uploads images)")
	password := flag.String("password", "password123", "Password for every seeded user")
	randSeed := flag.Int64("seed", 0, "Random seed, 0 for a random one")
	flag.Parse()

	log.Println("🌱 Vortexx Seeder")
	log.Printf("Target: %d users, %d posts, %d comments, %d stories\n", *numUsers, *numPosts, *numComments, *numStories)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{InitRepo: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(ctx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	s := seed.NewSeeder(seed.Services{
		Auth:     rt.Auth,
		Users:    rt.Users,
		Posts:    rt.Posts,
		Comments: rt.Comments,
		Stories:  rt.Stories,
		Sessions: rt.Sessions,
	}, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		NumComments: *numComments,
		NumLikes:    *numLikes,
		NumStories:  *numStories,
		Password:    *password,
		Seed:        *randSeed,
	})

	if _, err := s.Run(ctx); err != nil {
		_ = rt.Close(ctx)
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done!")
	log.Printf("📧 All seeded users have the password: %s", *password)
}
