package api

import (
	"context"
	"time"

	"physioheal/internal/domain"
	"physioheal/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	submissionServiceName = "physioheal.admin.v1.SubmissionService"
	methodListBookings    = "/" + submissionServiceName + "/ListBookings"
	methodListContacts    = "/" + submissionServiceName + "/ListContacts"
)

// SubmissionServiceServer is the admin read API. Requests carry optional
// "from" and "to" dates (YYYY-MM-DD); responses carry a list under
// "bookings" or "contacts".
type SubmissionServiceServer interface {
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListContacts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var SubmissionServiceDesc = grpc.ServiceDesc{
	ServiceName: submissionServiceName,
	HandlerType: (*SubmissionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListBookings", Handler: listBookingsHandler},
		{MethodName: "ListContacts", Handler: listContactsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "physioheal/admin/v1/submission.proto",
}

func RegisterSubmissionServiceServer(s grpc.ServiceRegistrar, srv SubmissionServiceServer) {
	s.RegisterService(&SubmissionServiceDesc, srv)
}

func listBookingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubmissionServiceServer).ListBookings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListBookings}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SubmissionServiceServer).ListBookings(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listContactsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubmissionServiceServer).ListContacts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListContacts}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SubmissionServiceServer).ListContacts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SubmissionServiceClient is a thin client over a grpc.ClientConnInterface.
type SubmissionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSubmissionServiceClient(cc grpc.ClientConnInterface) *SubmissionServiceClient {
	return &SubmissionServiceClient{cc: cc}
}

func (c *SubmissionServiceClient) ListBookings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListBookings, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SubmissionServiceClient) ListContacts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListContacts, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmissionService serves stored submissions to admin tools.
type SubmissionService struct {
	reader domain.SubmissionReader
	now    func() time.Time
}

func NewSubmissionService(reader domain.SubmissionReader) *SubmissionService {
	return &SubmissionService{reader: reader, now: time.Now}
}

func (s *SubmissionService) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, to, err := parseRange(stringField(req, "from"), stringField(req, "to"), s.now())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	bookings, err := s.reader.ListBookings(ctx, from, to)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to list bookings")
	}

	list := make([]any, 0, len(bookings))
	for _, b := range bookings {
		list = append(list, bookingFields(b))
	}
	return newListStruct("bookings", list)
}

func (s *SubmissionService) ListContacts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, to, err := parseRange(stringField(req, "from"), stringField(req, "to"), s.now())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	contacts, err := s.reader.ListContacts(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to list contacts")
	}

	list := make([]any, 0, len(contacts))
	for _, c := range contacts {
		list = append(list, contactFields(c))
	}
	return newListStruct("contacts", list)
}

func newListStruct(key string, list []any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{key: list})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func bookingFields(b *models.Booking) map[string]any {
	return map[string]any{
		"id":         b.ID,
		"first_name": b.FirstName,
		"last_name":  b.LastName,
		"email":      b.Email,
		"phone":      b.Phone,
		"service":    b.Service,
		"date":       b.Date.Format(models.DateLayout),
		"time_slot":  b.TimeSlot,
		"message":    b.Message,
		"status":     b.Status,
		"created_at": b.CreatedAt.Format(time.RFC3339),
	}
}

func contactFields(c *models.ContactMessage) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Phone,
		"service":    c.Service,
		"message":    c.Message,
		"created_at": c.CreatedAt.Format(time.RFC3339),
	}
}
