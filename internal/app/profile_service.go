package app

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"pagewise/internal/model"
	"pagewise/internal/pkg/apperr"
)

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uint) (*model.UserProfile, error)
	Save(ctx context.Context, profile *model.UserProfile) error
}

type ProfileService struct {
	profiles ProfileStore
	validate *validator.Validate
}

// Field rules mirror the column sizes of model.UserProfile.
const (
	displayNameRule = "min=1,max=255"
	avatarURLRule   = "omitempty,http_url,max=1024"
	emailRule       = "omitempty,email,max=128"
)

// UpdateProfileInput is a partial edit; nil fields keep their value.
type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	Email       *string
}

func NewProfileService(profiles ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles, validate: validator.New()}
}

func (s *ProfileService) Get(ctx context.Context, userID uint) (*model.UserProfile, error) {
	if userID == 0 {
		return nil, apperr.MissingInput("user is required")
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperr.New(apperr.KindNotFound, "profile not found", nil)
	}
	return profile, nil
}

func (s *ProfileService) Update(ctx context.Context, in UpdateProfileInput) (*model.UserProfile, error) {
	profile, err := s.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if err := s.validate.Var(name, displayNameRule); err != nil {
			return nil, apperr.InvalidInputKind("display name must be 1 to 255 characters", err)
		}
		profile.DisplayName = name
	}
	if in.Bio != nil {
		profile.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if err := s.validate.Var(avatar, avatarURLRule); err != nil {
			return nil, apperr.InvalidInputKind("avatar must be an http(s) url", err)
		}
		profile.AvatarURL = avatar
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := s.validate.Var(email, emailRule); err != nil {
			return nil, apperr.InvalidInputKind("email is not valid", err)
		}
		profile.Email = email
	}

	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
