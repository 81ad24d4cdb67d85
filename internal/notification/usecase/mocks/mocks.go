// Package mocks provides mock implementations for testing the notification use cases.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/notifier/internal/broker"
	"github.com/allisson/notifier/internal/notification/domain"
)

// MockStatusRepository is a mock implementation of StatusRepository for testing.
type MockStatusRepository struct {
	mock.Mock
}

func (m *MockStatusRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStatusRepository) Get(ctx context.Context, eventID uuid.UUID) (domain.NotificationStatus, bool) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(domain.NotificationStatus), args.Bool(1)
}

func (m *MockStatusRepository) Set(ctx context.Context, eventID uuid.UUID, status domain.NotificationStatus) {
	m.Called(ctx, eventID, status)
}

func (m *MockStatusRepository) IncrAttempts(ctx context.Context, key string) int64 {
	args := m.Called(ctx, key)
	return args.Get(0).(int64)
}

func (m *MockStatusRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockBroker is a mock implementation of Broker for testing.
type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBroker) DeclareTopology(ctx context.Context) (broker.Topology, error) {
	args := m.Called(ctx)
	return args.Get(0).(broker.Topology), args.Error(1)
}

func (m *MockBroker) Subscribe(ctx context.Context, prefetch int) (broker.Subscription, error) {
	args := m.Called(ctx, prefetch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(broker.Subscription), args.Error(1)
}

func (m *MockBroker) CloseChannel() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBroker) CloseConnection() error {
	args := m.Called()
	return args.Error(0)
}

// MockDispatcher is a mock implementation of Dispatcher for testing.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier for testing.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
