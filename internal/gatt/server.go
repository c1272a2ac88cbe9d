package gatt

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ServerEvent is one decoded inbound event for the declared services.
type ServerEvent interface {
	serverEvent()
}

// BatteryLevelCCCDWrite is a subscription change on the battery level.
type BatteryLevelCCCDWrite struct {
	Notifications bool
}

// FooWrite is a remote write of the Foo value.
type FooWrite struct {
	Value uint16
}

// FooCCCDWrite is a subscription change on Foo.
type FooCCCDWrite struct {
	Notifications bool
	Indications   bool
}

func (BatteryLevelCCCDWrite) serverEvent() {}
func (FooWrite) serverEvent()              {}
func (FooCCCDWrite) serverEvent()          {}

// ValueSink mirrors stored values into the link's own attribute table.
type ValueSink interface {
	SetValue(h Handle, value []byte) error
}

// Subscription is the CCCD state of one characteristic.
type Subscription struct {
	Notifications bool
	Indications   bool
}

type update struct {
	handle Handle
	value  []byte
}

// Server owns the declared services and their stored values.
type Server struct {
	log      logrus.FieldLogger
	services []Service
	battery  Characteristic
	foo      Characteristic

	mu      sync.Mutex
	values  map[Handle][]byte
	sink    ValueSink
	active  bool
	updates chan update

	// OnEvent, if set, is called from the session loop for every decoded event.
	OnEvent func(ServerEvent)
}

// NewServer declares the battery and Foo services.
//
// Handles are assigned the way an attribute table would lay them out:
// service declaration, characteristic declaration, value, then a CCCD for
// characteristics that can notify or indicate.
func NewServer(log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		log:     log.WithField("task", "gatt"),
		values:  make(map[Handle][]byte),
		updates: make(chan update, 8),
	}
	s.services = assignHandles([]Service{
		{
			UUID: BatteryServiceUUID,
			Characteristics: []Characteristic{
				{UUID: BatteryLevelUUID, Properties: PropRead | PropNotify, Size: 1},
			},
		},
		{
			UUID: FooServiceUUID,
			Characteristics: []Characteristic{
				{UUID: FooUUID, Properties: PropRead | PropWrite | PropNotify | PropIndicate, Size: 2},
			},
		},
	})
	s.battery = s.services[0].Characteristics[0]
	s.foo = s.services[1].Characteristics[0]
	s.values[s.battery.Handle] = []byte{0}
	s.values[s.foo.Handle] = EncodeFoo(0)
	return s
}

func assignHandles(services []Service) []Service {
	next := Handle(1)
	for i := range services {
		next++ // service declaration
		for j := range services[i].Characteristics {
			c := &services[i].Characteristics[j]
			next++ // characteristic declaration
			c.Handle = next
			next++
			if c.Properties&(PropNotify|PropIndicate) != 0 {
				next++ // CCCD
			}
		}
	}
	return services
}

// Services returns the declared services.
func (s *Server) Services() []Service {
	out := make([]Service, len(s.services))
	for i, svc := range s.services {
		out[i] = Service{UUID: svc.UUID, Characteristics: append([]Characteristic(nil), svc.Characteristics...)}
	}
	return out
}

// BatteryLevelHandle is the value handle of the battery level.
func (s *Server) BatteryLevelHandle() Handle { return s.battery.Handle }

// FooHandle is the value handle of Foo.
func (s *Server) FooHandle() Handle { return s.foo.Handle }

// Characteristic looks up a declared characteristic by value handle.
func (s *Server) Characteristic(h Handle) (Characteristic, bool) {
	for _, svc := range s.services {
		for _, c := range svc.Characteristics {
			if c.Handle == h {
				return c, true
			}
		}
	}
	return Characteristic{}, false
}

// SetSink installs the mirror for stored values and seeds it.
func (s *Server) SetSink(sink ValueSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	if sink == nil {
		return nil
	}
	for h, v := range s.values {
		if err := sink.SetValue(h, v); err != nil {
			return fmt.Errorf("seed handle %d: %w", h, err)
		}
	}
	return nil
}

// Value returns a copy of the stored value for h.
func (s *Server) Value(h Handle) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// BatteryLevel returns the stored battery level.
func (s *Server) BatteryLevel() uint8 {
	v, _ := s.Value(s.battery.Handle)
	return v[0]
}

// Foo returns the stored Foo value.
func (s *Server) Foo() uint16 {
	v, _ := s.Value(s.foo.Handle)
	return DecodeFoo(v)
}

// SetBatteryLevel stores a new battery level. If a session is running the
// notification is sent from the session loop.
func (s *Server) SetBatteryLevel(level uint8) {
	value := []byte{level}
	s.store(s.battery.Handle, value)

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	select {
	case s.updates <- update{handle: s.battery.Handle, value: value}:
	default:
		s.log.Warn("battery update dropped: session busy")
	}
}

func (s *Server) store(h Handle, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[h] = value
	if s.sink != nil {
		if err := s.sink.SetValue(h, value); err != nil {
			s.log.Warnf("mirror handle %d: %v", h, err)
		}
	}
}

// Run serves one connection until the peer disconnects or ctx is done.
// Events are handled one at a time in arrival order.
func (s *Server) Run(ctx context.Context, conn Conn) error {
	s.begin()
	defer s.end()

	subs := make(map[Handle]Subscription)
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return ErrDisconnected
		case ev, ok := <-events:
			if !ok {
				return ErrDisconnected
			}
			s.handle(conn, subs, ev)
		case u := <-s.updates:
			s.notifyLogged(conn, subs, u.handle, u.value)
		}
	}
}

func (s *Server) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	for {
		select {
		case <-s.updates:
		default:
			return
		}
	}
}

func (s *Server) end() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *Server) handle(conn Conn, subs map[Handle]Subscription, raw Event) {
	if raw.Kind == EventRead {
		v, _ := s.Value(raw.Handle)
		if raw.Reply != nil {
			raw.Reply <- v
		}
		return
	}

	ev, err := s.decode(raw)
	if err != nil {
		s.log.Warnf("ignored %s on handle %d: %v", raw.Kind, raw.Handle, err)
		return
	}
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}

	switch ev := ev.(type) {
	case BatteryLevelCCCDWrite:
		subs[s.battery.Handle] = Subscription{Notifications: ev.Notifications}
		s.log.Infof("battery notifications: %v", ev.Notifications)
	case FooCCCDWrite:
		subs[s.foo.Handle] = Subscription{Notifications: ev.Notifications, Indications: ev.Indications}
		s.log.Infof("foo indications: %v, notifications: %v", ev.Indications, ev.Notifications)
	case FooWrite:
		s.store(s.foo.Handle, EncodeFoo(ev.Value))
		s.log.Infof("wrote foo: %d", ev.Value)
		s.notifyLogged(conn, subs, s.foo.Handle, EncodeFoo(ev.Value+1))
	}
}

func (s *Server) decode(raw Event) (ServerEvent, error) {
	c, ok := s.Characteristic(raw.Handle)
	if !ok {
		return nil, fmt.Errorf("unknown handle")
	}

	switch raw.Kind {
	case EventSubscribe:
		if raw.Notifications && !c.Properties.Has(PropNotify) {
			return nil, fmt.Errorf("notify not supported")
		}
		if raw.Indications && !c.Properties.Has(PropIndicate) {
			return nil, fmt.Errorf("indicate not supported")
		}
		switch c.Handle {
		case s.battery.Handle:
			return BatteryLevelCCCDWrite{Notifications: raw.Notifications}, nil
		case s.foo.Handle:
			return FooCCCDWrite{Notifications: raw.Notifications, Indications: raw.Indications}, nil
		}
	case EventWrite:
		if !c.Properties.Has(PropWrite) {
			return nil, fmt.Errorf("not writable")
		}
		if len(raw.Value) != c.Size {
			return nil, fmt.Errorf("invalid length %d", len(raw.Value))
		}
		if c.Handle == s.foo.Handle {
			return FooWrite{Value: DecodeFoo(raw.Value)}, nil
		}
	}
	return nil, fmt.Errorf("unsupported event")
}

func (s *Server) notifyLogged(conn Conn, subs map[Handle]Subscription, h Handle, value []byte) {
	if err := notify(conn, subs, h, value); err != nil {
		s.log.Warnf("send notification error: %v", err)
	}
}

func notify(conn Conn, subs map[Handle]Subscription, h Handle, value []byte) error {
	select {
	case <-conn.Done():
		return &NotificationError{Handle: h, Reason: ReasonDisconnected}
	default:
	}
	if !subs[h].Notifications {
		return &NotificationError{Handle: h, Reason: ReasonNotSubscribed}
	}
	if err := conn.Notify(h, value); err != nil {
		return &NotificationError{Handle: h, Reason: ReasonLink, Err: err}
	}
	return nil
}

// EncodeFoo returns the little-endian wire form of v.
func EncodeFoo(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// DecodeFoo reads a little-endian u16; short input decodes as zero.
func DecodeFoo(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
