package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "storefront.v1.IdentifierService"

const (
	IdentifierService_CreateAccount_FullMethodName       = "/" + ServiceName + "/CreateAccount"
	IdentifierService_GetAccount_FullMethodName          = "/" + ServiceName + "/GetAccount"
	IdentifierService_CreateOrder_FullMethodName         = "/" + ServiceName + "/CreateOrder"
	IdentifierService_GetOrder_FullMethodName            = "/" + ServiceName + "/GetOrder"
	IdentifierService_ListOrders_FullMethodName          = "/" + ServiceName + "/ListOrders"
	IdentifierService_CancelOrder_FullMethodName         = "/" + ServiceName + "/CancelOrder"
	IdentifierService_AssignCustomerCodes_FullMethodName = "/" + ServiceName + "/AssignCustomerCodes"
)

// IdentifierServiceServer — серверная часть IdentifierService.
type IdentifierServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*CreateAccountResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*GetAccountResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	AssignCustomerCodes(context.Context, *AssignCustomerCodesRequest) (*AssignCustomerCodesResponse, error)
}

// IdentifierService_ServiceDesc описывает сервис без protoc: сообщения
// кодируются JSON-кодеком.
var IdentifierService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentifierServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateAccount",
			Handler:    unaryHandler(IdentifierService_CreateAccount_FullMethodName, IdentifierServiceServer.CreateAccount),
		},
		{
			MethodName: "GetAccount",
			Handler:    unaryHandler(IdentifierService_GetAccount_FullMethodName, IdentifierServiceServer.GetAccount),
		},
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler(IdentifierService_CreateOrder_FullMethodName, IdentifierServiceServer.CreateOrder),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(IdentifierService_GetOrder_FullMethodName, IdentifierServiceServer.GetOrder),
		},
		{
			MethodName: "ListOrders",
			Handler:    unaryHandler(IdentifierService_ListOrders_FullMethodName, IdentifierServiceServer.ListOrders),
		},
		{
			MethodName: "CancelOrder",
			Handler:    unaryHandler(IdentifierService_CancelOrder_FullMethodName, IdentifierServiceServer.CancelOrder),
		},
		{
			MethodName: "AssignCustomerCodes",
			Handler:    unaryHandler(IdentifierService_AssignCustomerCodes_FullMethodName, IdentifierServiceServer.AssignCustomerCodes),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/identifier_service",
}

// RegisterIdentifierServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterIdentifierServiceServer(s grpc.ServiceRegistrar, srv IdentifierServiceServer) {
	s.RegisterService(&IdentifierService_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(IdentifierServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		invoke := func(ctx context.Context, req any) (any, error) {
			resp, err := call(srv.(IdentifierServiceServer), ctx, req.(*Req))
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		if interceptor == nil {
			return invoke(ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, invoke)
	}
}

// IdentifierServiceClient — клиент IdentifierService.
type IdentifierServiceClient interface {
	CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error)
	GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error)
	CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error)
	AssignCustomerCodes(ctx context.Context, in *AssignCustomerCodesRequest, opts ...grpc.CallOption) (*AssignCustomerCodesResponse, error)
}

type identifierServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewIdentifierServiceClient создаёт клиента поверх соединения.
func NewIdentifierServiceClient(cc grpc.ClientConnInterface) IdentifierServiceClient {
	return &identifierServiceClient{cc: cc}
}

func (c *identifierServiceClient) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error) {
	return invoke[CreateAccountResponse](ctx, c.cc, IdentifierService_CreateAccount_FullMethodName, in, opts)
}

func (c *identifierServiceClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error) {
	return invoke[GetAccountResponse](ctx, c.cc, IdentifierService_GetAccount_FullMethodName, in, opts)
}

func (c *identifierServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	return invoke[CreateOrderResponse](ctx, c.cc, IdentifierService_CreateOrder_FullMethodName, in, opts)
}

func (c *identifierServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, IdentifierService_GetOrder_FullMethodName, in, opts)
}

func (c *identifierServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, IdentifierService_ListOrders_FullMethodName, in, opts)
}

func (c *identifierServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	return invoke[CancelOrderResponse](ctx, c.cc, IdentifierService_CancelOrder_FullMethodName, in, opts)
}

func (c *identifierServiceClient) AssignCustomerCodes(ctx context.Context, in *AssignCustomerCodesRequest, opts ...grpc.CallOption) (*AssignCustomerCodesResponse, error) {
	return invoke[AssignCustomerCodesResponse](ctx, c.cc, IdentifierService_AssignCustomerCodes_FullMethodName, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
