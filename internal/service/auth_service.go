package service

import (
	"context"
	"errors"
	"time"

	"vortexx/internal/docstore"
	"vortexx/internal/media"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/session"
	"vortexx/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	store    *docstore.Store
	mirror   *mirror.Mirror
	sessions *session.Manager
	media    *MediaPipeline
}

type RegisterInput struct {
	Name            string
	Username        string
	Password        string
	ConfirmPassword string
	ProfilePic      *media.File
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func NewAuthService(store *docstore.Store, m *mirror.Mirror, sessions *session.Manager, pipeline *MediaPipeline) *AuthService {
	return &AuthService{store: store, mirror: m, sessions: sessions, media: pipeline}
}

// Register creates the account and signs the new user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validation.ValidateRegistration(validation.Registration{
		Name:            in.Name,
		Username:        in.Username,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	}); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.ProfilePic != nil {
		if err := media.Validate(*in.ProfilePic, media.ProfilePicLimits); err != nil {
			return nil, err
		}
	}

	exists, err := s.store.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, storeError(err, "User", in.Username)
	}
	if exists {
		return nil, models.NewConflictError("Username already exists")
	}

	var profilePic string
	if in.ProfilePic != nil {
		item, err := s.media.Process(ctx, *in.ProfilePic, media.ProfilePicLimits)
		if err != nil {
			return nil, err
		}
		profilePic = item.URL
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), passwordCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Username:     in.Username,
		PasswordHash: string(hash),
		ProfilePic:   profilePic,
		JoinDate:     s.store.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.store.PutDocument(ctx, docstore.UserPath(user.Username), user, ""); err != nil {
		// another registration won the create
		if docstore.IsConflict(err) {
			return nil, models.NewConflictError("Username already exists")
		}
		return nil, storeError(err, "User", user.Username)
	}
	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionUsers, user.Username, user.IndexRecord())
	bestEffort(ctx, "mirror_upsert_user", s.mirror.UpsertUser(ctx, user), map[string]any{"username": user.Username})

	return s.signIn(ctx, user)
}

// Login checks the credentials against the stored user document.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, models.NewValidationError("Please fill in all fields")
	}

	var user models.User
	if _, err := s.store.ReadDocument(ctx, docstore.UserPath(username), &user); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewUnauthorizedError("Invalid username or password")
		}
		return nil, storeError(err, "User", username)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid username or password")
	}

	bestEffort(ctx, "mirror_upsert_user", s.mirror.UpsertUser(ctx, user), map[string]any{"username": user.Username})
	return s.signIn(ctx, user)
}

// Logout revokes sess.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	return s.sessions.Logout(ctx, sess)
}

func (s *AuthService) signIn(ctx context.Context, user models.User) (*AuthResult, error) {
	token, sess, err := s.sessions.Login(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: sess.User}, nil
}
