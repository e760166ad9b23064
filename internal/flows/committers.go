package flows

import (
	"context"

	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/service"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

func deleteItem(svc InventoryService) func(context.Context, workflow.Command) error {
	return func(ctx context.Context, cmd workflow.Command) error {
		return toFailure(svc.DeleteItem(ctx, &service.DeleteItemRequest{
			ID:         cmd.TargetID,
			SupplierID: cmd.ScopeID,
			Reason:     cmd.Reason,
			DeletedBy:  cmd.Actor,
		}))
	}
}

func deleteSupplier(svc InventoryService) func(context.Context, workflow.Command) error {
	return func(ctx context.Context, cmd workflow.Command) error {
		return toFailure(svc.DeleteSupplier(ctx, &service.DeleteSupplierRequest{
			ID:        cmd.TargetID,
			DeletedBy: cmd.Actor,
			IsAdmin:   cmd.IsAdmin,
		}))
	}
}

func editSupplier(svc InventoryService) func(context.Context, workflow.Command) error {
	return func(ctx context.Context, cmd workflow.Command) error {
		req := &service.UpdateSupplierRequest{
			ID:        cmd.TargetID,
			UpdatedBy: cmd.Actor,
			IsAdmin:   cmd.IsAdmin,
		}
		if v, ok := cmd.Payload["name"]; ok {
			req.Name = &v
		}
		if v, ok := cmd.Payload["contact_name"]; ok {
			req.ContactName = &v
		}
		if v, ok := cmd.Payload["email"]; ok {
			req.Email = &v
		}
		if v, ok := cmd.Payload["phone"]; ok {
			req.Phone = &v
		}
		_, err := svc.UpdateSupplier(ctx, req)
		return toFailure(err)
	}
}

// toFailure turns an application rejection into the workflow's raw failure
// signal. Internal errors and anything that is not an AppError stay transport
// errors so they are logged rather than shown.
func toFailure(err error) error {
	if err == nil {
		return nil
	}
	appErr, ok := errors.As(err)
	if !ok || appErr.Code == errors.ErrCodeInternal {
		return err
	}
	return &workflow.Failure{
		Code:    string(appErr.Code),
		Status:  appErr.HTTPStatus(),
		Message: appErr.Message,
	}
}
