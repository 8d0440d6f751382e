package dto

import (
	"time"

	"github.com/aarondl/null/v8"

	"parts-tracker/internal/entities"
)

type CreatePartDTO struct {
	PartID            string  `json:"partId" validate:"required,notblank,max=50"`
	Type              string  `json:"type" validate:"required,part_type"`
	Name              string  `json:"name" validate:"max=200"`
	Subsystem         string  `json:"subsystem" validate:"required,notblank,max=100"`
	Material          string  `json:"material" validate:"required,notblank,max=100"`
	MaterialThickness *string `json:"materialThickness" validate:"omitempty,max=50"`
	Amount            *int    `json:"amount" validate:"omitempty,min=0"`
	Notes             string  `json:"notes" validate:"max=5000"`
	OnshapeURL        *string `json:"onshapeUrl" validate:"omitempty,max=500,http_url"`
}

// UpdatePartDTO edits descriptive fields only. Absent fields are left alone;
// an empty string clears materialThickness and onshapeUrl.
type UpdatePartDTO struct {
	Name              *string `json:"name" validate:"omitempty,max=200"`
	Subsystem         *string `json:"subsystem" validate:"omitempty,notblank,max=100"`
	Material          *string `json:"material" validate:"omitempty,notblank,max=100"`
	MaterialThickness *string `json:"materialThickness" validate:"omitempty,max=50"`
	Amount            *int    `json:"amount" validate:"omitempty,min=0"`
	Notes             *string `json:"notes" validate:"omitempty,max=5000"`
	OnshapeURL        *string `json:"onshapeUrl" validate:"omitempty,max=500,http_url"`
}

type ApprovePartDTO struct {
	Category string `json:"category" validate:"required,category"`
}

type AssignPartDTO struct {
	Assigned       string `json:"assigned" validate:"required,notblank,max=100"`
	AlreadyStarted bool   `json:"already_started"`
}

type CompletePartDTO struct {
	CompletedAmount *int `json:"completed_amount" validate:"omitempty,min=0"`
}

type RevertPartDTO struct {
	Category string `json:"category" validate:"required,category"`
}

type WipePartsDTO struct {
	Confirmation string `json:"confirmation"`
}

type PartResponseDTO struct {
	ID                int64       `json:"id"`
	PartID            string      `json:"partId"`
	Type              string      `json:"type"`
	Name              string      `json:"name"`
	DisplayName       string      `json:"displayName"`
	Subsystem         string      `json:"subsystem"`
	Material          string      `json:"material"`
	MaterialThickness null.String `json:"materialThickness"`
	Amount            int         `json:"amount"`
	CompletedAmount   null.Int    `json:"completedAmount"`
	Notes             string      `json:"notes"`
	OnshapeURL        null.String `json:"onshapeUrl"`
	Category          string      `json:"category"`
	Status            string      `json:"status"`
	Assigned          null.String `json:"assigned"`
	ClaimedDate       null.Time   `json:"claimedDate"`
	CompletedAt       null.Time   `json:"completedAt"`
	File              null.String `json:"file"`
	HasModel          bool        `json:"hasModel"`
	ConversionStatus  string      `json:"conversionStatus"`
	ConversionError   null.String `json:"conversionError"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// ToPartResponse hides storage keys; clients address files through part routes.
func ToPartResponse(p entities.Part) PartResponseDTO {
	return PartResponseDTO{
		ID:                p.ID,
		PartID:            p.PartID,
		Type:              string(p.Type),
		Name:              p.Name,
		DisplayName:       p.DisplayName(),
		Subsystem:         p.Subsystem,
		Material:          p.Material,
		MaterialThickness: null.StringFromPtr(p.MaterialThickness),
		Amount:            p.Amount,
		CompletedAmount:   null.IntFromPtr(p.CompletedAmount),
		Notes:             p.Notes,
		OnshapeURL:        null.StringFromPtr(p.OnshapeURL),
		Category:          string(p.Category),
		Status:            string(p.Status),
		Assigned:          null.StringFromPtr(p.Assigned),
		ClaimedDate:       null.TimeFromPtr(p.ClaimedDate),
		CompletedAt:       null.TimeFromPtr(p.CompletedAt),
		File:              null.StringFromPtr(p.File),
		HasModel:          p.ModelPath != nil,
		ConversionStatus:  string(p.ConversionStatus),
		ConversionError:   null.StringFromPtr(p.ConversionError),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func ToPartResponses(parts []entities.Part) []PartResponseDTO {
	out := make([]PartResponseDTO, 0, len(parts))
	for _, p := range parts {
		out = append(out, ToPartResponse(p))
	}
	return out
}

type WipeResultDTO struct {
	Deleted int64 `json:"deleted"`
}

type LinkTokenDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthCheckDTO struct {
	Authenticated bool `json:"authenticated"`
}
