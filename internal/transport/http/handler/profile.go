package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pagewise/internal/app"
	"pagewise/internal/transport/http/response"
)

type ProfileHandler struct {
	profileService *app.ProfileService
}

// UpdateProfileRequest fields left out of the body keep their value.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,min=1,max=255"`
	Bio         *string `json:"bio" binding:"omitempty,max=4000"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,max=1024"`
	Email       *string `json:"email" binding:"omitempty,max=128"`
}

func NewProfileHandler(profileService *app.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	profile, err := h.profileService.Get(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err, "get profile failed")
		return
	}
	response.OK(c, profile)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	profile, err := h.profileService.Update(c.Request.Context(), app.UpdateProfileInput{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		Email:       req.Email,
	})
	if err != nil {
		response.Fail(c, err, "update profile failed")
		return
	}
	response.OK(c, profile)
}
