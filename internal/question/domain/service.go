package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
)

type CreateQuestionRequest struct {
	Category string
	Text     string
}

type UpdateQuestionRequest struct {
	Category *string
	Text     *string
}

type Service interface {
	List(ctx context.Context) ([]Question, error)
	Create(ctx context.Context, req CreateQuestionRequest) (Question, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateQuestionRequest) (Question, error)
	Delete(ctx context.Context, id snowflake.ID) error
	// GenerateQuestionnaire replaces the tenant's own questions with AI
	// drafts. An empty draft set leaves everything unchanged.
	GenerateQuestionnaire(ctx context.Context) ([]Question, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidText         = apperror.Validation("invalid_question_text")
	ErrReadOnly            = apperror.Validation("question_read_only")
	ErrNotFound            = apperror.NotFound("question_not_found")
)
