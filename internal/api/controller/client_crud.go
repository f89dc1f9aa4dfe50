package controller

import (
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/go-playground/validator/v10"
)

// ClientRegistry is the window registry behind the clients endpoints.
type ClientRegistry interface {
	Register(info runtime.ClientInfo) runtime.ClientInfo
	Navigate(id, url string) (runtime.ClientInfo, error)
	Remove(id string) error
	List() []runtime.ClientInfo
}

// ClientCrudService implements CrudService for application windows.
type ClientCrudService struct {
	Clients ClientRegistry
}

func (s *ClientCrudService) All() ([]runtime.ClientInfo, error) {
	return s.Clients.List(), nil
}

func (s *ClientCrudService) Add(item runtime.ClientInfo) ([]runtime.ClientInfo, error) {
	s.Clients.Register(item)
	return s.Clients.List(), nil
}

// Update navigates the window to the URL of item.
func (s *ClientCrudService) Update(id string, item runtime.ClientInfo) ([]runtime.ClientInfo, error) {
	if _, err := s.Clients.Navigate(id, item.URL); err != nil {
		return nil, err
	}
	return s.Clients.List(), nil
}

func (s *ClientCrudService) Remove(id string) ([]runtime.ClientInfo, error) {
	if err := s.Clients.Remove(id); err != nil {
		return nil, err
	}
	return s.Clients.List(), nil
}

// ClientCrudValidator implements CrudValidator for application windows.
type ClientCrudValidator struct {
	validator *validator.Validate
}

func NewClientCrudValidator() *ClientCrudValidator {
	return &ClientCrudValidator{validator: validator.New()}
}

func (v *ClientCrudValidator) Validate(item runtime.ClientInfo) error {
	return v.validator.Struct(item)
}

// NewClientController wires the generic CRUD handlers to the window registry.
func NewClientController(clients ClientRegistry) *CrudController[runtime.ClientInfo] {
	return &CrudController[runtime.ClientInfo]{
		Service:   &ClientCrudService{Clients: clients},
		Validator: NewClientCrudValidator(),
	}
}
