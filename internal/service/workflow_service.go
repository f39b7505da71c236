package service

import (
	"context"
	"errors"
	"fmt"

	"kb-assistant/internal/config"
	"kb-assistant/internal/dto"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/rag/session"
	"kb-assistant/pkg/rag/workflow"
)

var ErrFileTooLarge = errors.New("file exceeds the upload size limit")

type IWorkflowService interface {
	Show(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error)
	SelectFile(ctx context.Context, sessionID string, file gateway.File) (*dto.WorkflowResponse, error)
	Next(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error)
	UpdateParams(ctx context.Context, sessionID string, req *dto.UpdateParamsRequest) (*dto.WorkflowResponse, error)
	Step(ctx context.Context, sessionID string, req *dto.StepParamRequest) (*dto.WorkflowResponse, error)
	Save(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error)
	Confirm(ctx context.Context, sessionID string) (*dto.ConfirmWorkflowResponse, error)
	Reset(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error)
}

type workflowService struct {
	sessions    *session.Manager
	constraints dto.UploadConstraints
}

func NewWorkflowService(sessions *session.Manager, upload config.UploadConfig) IWorkflowService {
	return &workflowService{
		sessions: sessions,
		constraints: dto.UploadConstraints{
			MaxSize:           upload.MaxSize,
			AcceptedTypes:     upload.AcceptedTypes,
			AcceptedMimeTypes: upload.AcceptedMimeTypes,
		},
	}
}

func (s *workflowService) load(sessionID string) (*workflow.Workflow, error) {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Workflow(sess), nil
}

func (s *workflowService) respond(state workflow.State, err error) (*dto.WorkflowResponse, error) {
	if err != nil {
		return nil, err
	}
	return &dto.WorkflowResponse{State: state, Constraints: s.constraints}, nil
}

func (s *workflowService) Show(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.State(), nil)
}

func (s *workflowService) SelectFile(ctx context.Context, sessionID string, file gateway.File) (*dto.WorkflowResponse, error) {
	if s.constraints.MaxSize > 0 && len(file.Content) > s.constraints.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(file.Content))
	}
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.SelectFile(file))
}

// Next starts the upload and returns right away; progress arrives over the websocket.
func (s *workflowService) Next(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.NextAsync(context.WithoutCancel(ctx)))
}

func (s *workflowService) UpdateParams(ctx context.Context, sessionID string, req *dto.UpdateParamsRequest) (*dto.WorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.EditParams(mergeParams(wf.State().Params, req)))
}

func mergeParams(params workflow.Params, req *dto.UpdateParamsRequest) workflow.Params {
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.ChunkSize != nil {
		params.ChunkSize = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		params.ChunkOverlap = *req.ChunkOverlap
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	return params
}

func (s *workflowService) Step(ctx context.Context, sessionID string, req *dto.StepParamRequest) (*dto.WorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.Step(workflow.Field(req.Field), req.Direction))
}

// Save starts index creation and returns right away.
func (s *workflowService) Save(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wf.SaveAsync(context.WithoutCancel(ctx)))
}

func (s *workflowService) Confirm(ctx context.Context, sessionID string) (*dto.ConfirmWorkflowResponse, error) {
	wf, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	kb, err := wf.Confirm()
	if err != nil {
		return nil, err
	}
	return &dto.ConfirmWorkflowResponse{Committed: kb != nil, KnowledgeBase: kb}, nil
}

func (s *workflowService) Reset(ctx context.Context, sessionID string) (*dto.WorkflowResponse, error) {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(s.sessions.OpenWorkflow(sess).State(), nil)
}
