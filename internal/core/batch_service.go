package core

import (
	"context"
	"fmt"
)

// BatchService sequences a list of individual mutation requests through the
// Mutation Engine. Each request is its own atomic call: a failed row is
// reported, it never rolls back rows already committed. This matches how
// spreadsheet imports are actually consumed.
type BatchService interface {
	ProcessBatch(ctx context.Context, requests []MutationRequest, actor Actor) (*BatchReport, error)
}

type batchService struct {
	mutations MutationService
}

func NewBatchService(mutations MutationService) BatchService {
	return &batchService{mutations: mutations}
}

// ProcessBatch runs the requests in order. Rows run strictly sequentially so
// two rows touching the same stock key can never race each other. The context
// is checked between rows: on cancellation the remaining rows are reported as
// skipped and the rows already committed stay committed.
func (s *batchService) ProcessBatch(ctx context.Context, requests []MutationRequest, actor Actor) (*BatchReport, error) {
	report := &BatchReport{Total: len(requests)}

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			report.Skipped = len(requests) - i
			return report, nil
		}

		rowRef := req.RowRef
		if rowRef == "" {
			rowRef = fmt.Sprintf("row %d", i+1)
		}

		if err := s.executeOne(ctx, req, actor); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, BatchItemError{
				RowRef: rowRef,
				Code:   ErrorCode(err),
				Error:  err.Error(),
			})
			continue
		}
		report.Succeeded++
	}
	return report, nil
}

func (s *batchService) executeOne(ctx context.Context, req MutationRequest, actor Actor) error {
	switch req.Operation {
	case MovementInbound:
		_, err := s.mutations.Inbound(ctx, InboundRequest{
			Warehouse:      req.WarehouseCode,
			Location:       req.LocationCode,
			Product:        req.SKU,
			Quantity:       req.Quantity,
			Attributes:     req.Attributes,
			Note:           req.Note,
			IdempotencyKey: req.IdempotencyKey,
			Actor:          actor,
		})
		return err
	case MovementOutbound:
		_, err := s.mutations.Outbound(ctx, OutboundRequest{
			Warehouse:      req.WarehouseCode,
			Location:       req.LocationCode,
			Product:        req.SKU,
			Quantity:       req.Quantity,
			Attributes:     req.Attributes,
			Note:           req.Note,
			IdempotencyKey: req.IdempotencyKey,
			Actor:          actor,
		})
		return err
	case MovementTransfer:
		_, err := s.mutations.Transfer(ctx, TransferRequest{
			Warehouse:       req.WarehouseCode,
			FromLocation:    req.LocationCode,
			TargetWarehouse: req.TargetWarehouse,
			TargetLocation:  req.TargetLocation,
			Product:         req.SKU,
			Quantity:        req.Quantity,
			Attributes:      req.Attributes,
			Note:            req.Note,
			IdempotencyKey:  req.IdempotencyKey,
			Actor:           actor,
		})
		return err
	case MovementAdjust:
		_, err := s.mutations.Adjust(ctx, AdjustRequest{
			Warehouse:      req.WarehouseCode,
			Location:       req.LocationCode,
			Product:        req.SKU,
			Delta:          req.Quantity,
			Attributes:     req.Attributes,
			Reason:         req.Reason,
			Source:         AdjustSourceManual,
			Note:           req.Note,
			IdempotencyKey: req.IdempotencyKey,
			Actor:          actor,
		})
		return err
	default:
		return validationf("unknown operation %q", req.Operation)
	}
}
