package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"bookvault/internal/orders/application"
	"bookvault/internal/orders/domain"
	"bookvault/pkg/errors"
)

// OrderServiceName is the fully qualified gRPC service name
const OrderServiceName = "bookvault.orders.v1.OrderService"

// OrderServiceServer is the server API for the order service. Requests and
// responses are google.protobuf.Struct documents shaped like the HTTP DTOs.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderByNumber(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrdersByUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrdersByStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateTracking(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// OrderServiceDesc describes the order service for grpc.Server
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler("CreateOrder", OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", OrderServiceServer.GetOrder)},
		{MethodName: "GetOrderByNumber", Handler: unaryHandler("GetOrderByNumber", OrderServiceServer.GetOrderByNumber)},
		{MethodName: "ListOrdersByUser", Handler: unaryHandler("ListOrdersByUser", OrderServiceServer.ListOrdersByUser)},
		{MethodName: "ListOrdersByStatus", Handler: unaryHandler("ListOrdersByStatus", OrderServiceServer.ListOrdersByStatus)},
		{MethodName: "TransitionStatus", Handler: unaryHandler("TransitionStatus", OrderServiceServer.TransitionStatus)},
		{MethodName: "CancelOrder", Handler: unaryHandler("CancelOrder", OrderServiceServer.CancelOrder)},
		{MethodName: "UpdateTracking", Handler: unaryHandler("UpdateTracking", OrderServiceServer.UpdateTracking)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookvault/orders/v1/orders.proto",
}

// RegisterOrderServiceServer registers srv on s
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler(name string, method unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + OrderServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCServer implements OrderServiceServer on top of the use case
type GRPCServer struct {
	useCase *application.OrderUseCase
}

// NewGRPCServer creates a new gRPC server
func NewGRPCServer(useCase *application.OrderUseCase) *GRPCServer {
	return &GRPCServer{useCase: useCase}
}

type grpcCreateOrderRequest struct {
	UserID         string `json:"user_id"`
	IdempotencyKey string `json:"idempotency_key"`
	CreateOrderRequest
}

type grpcOrderRequest struct {
	ID                    string     `json:"id"`
	OrderNumber           string     `json:"order_number"`
	Status                string     `json:"status"`
	Reason                string     `json:"reason"`
	TrackingNumber        string     `json:"tracking_number"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
}

type grpcListRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
	Page   int    `json:"page"`
	Size   int    `json:"size"`
}

// CreateOrder implements OrderServiceServer.CreateOrder
func (s *GRPCServer) CreateOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcCreateOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	userID, err := parseID(req.UserID, "user_id")
	if err != nil {
		return nil, err
	}
	input, err := req.toInput(userID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.CreateOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// GetOrder implements OrderServiceServer.GetOrder
func (s *GRPCServer) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	id, err := parseID(req.ID, "order_id")
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// GetOrderByNumber implements OrderServiceServer.GetOrderByNumber
func (s *GRPCServer) GetOrderByNumber(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	output, err := s.useCase.GetOrderByNumber(ctx, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// ListOrdersByUser implements OrderServiceServer.ListOrdersByUser
func (s *GRPCServer) ListOrdersByUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcListRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	userID, err := parseID(req.UserID, "user_id")
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.ListOrdersByUser(ctx, userID, application.ListOrdersInput{Page: req.Page, Size: req.Size})
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderListResponse(output))
}

// ListOrdersByStatus implements OrderServiceServer.ListOrdersByStatus
func (s *GRPCServer) ListOrdersByStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcListRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.ListOrdersByStatus(ctx, status, application.ListOrdersInput{Page: req.Page, Size: req.Size})
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderListResponse(output))
}

// TransitionStatus implements OrderServiceServer.TransitionStatus
func (s *GRPCServer) TransitionStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	id, err := parseID(req.ID, "order_id")
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.TransitionStatus(ctx, application.TransitionStatusInput{ID: id, Status: status, Reason: req.Reason})
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// CancelOrder implements OrderServiceServer.CancelOrder
func (s *GRPCServer) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	id, err := parseID(req.ID, "order_id")
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.CancelOrder(ctx, application.CancelOrderInput{ID: id, Reason: req.Reason})
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// UpdateTracking implements OrderServiceServer.UpdateTracking
func (s *GRPCServer) UpdateTracking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcOrderRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	id, err := parseID(req.ID, "order_id")
	if err != nil {
		return nil, err
	}

	output, err := s.useCase.UpdateTracking(ctx, application.UpdateTrackingInput{
		ID:                    id,
		TrackingNumber:        req.TrackingNumber,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
	})
	if err != nil {
		return nil, err
	}
	return encodeStruct(newOrderResponse(output))
}

// decodeStruct maps a Struct onto a request DTO through its JSON form
func decodeStruct(in *structpb.Struct, v interface{}) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return errors.NewValidation("invalid request", err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewValidation("invalid request", err.Error())
	}
	return nil
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewInternal("failed to encode response", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, errors.NewInternal("failed to encode response", err)
	}
	return out, nil
}
