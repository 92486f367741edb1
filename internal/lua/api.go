package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/events"
)

// AllEvents is the event name that subscribes a handler to every event.
const AllEvents = "*"

// API exposes a Central to scripts as the global `ble` table.
//
//	ble.on("device_found", function(e) print(e.address, e.rssi) end)
//	ble.start_scan()
//	ble.after(5000, function() ble.exit(0) end)
type API struct {
	central *central.Central
	engine  *Engine
	logger  *logrus.Logger

	mu       sync.Mutex
	unsubs   []func()
	timers   []*time.Timer
	exitOnce sync.Once
	exitCh   chan int
}

// NewAPI creates an engine with the `ble` table bound to c.
func NewAPI(c *central.Central, outputCapacity int, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.New()
	}
	api := &API{
		central: c,
		engine:  NewEngine(outputCapacity, logger),
		logger:  logger,
		exitCh:  make(chan int, 1),
	}
	api.engine.Do(api.register)
	return api
}

// Engine returns the underlying Lua engine.
func (api *API) Engine() *Engine {
	return api.engine
}

// Run executes the script, then keeps dispatching events to its handlers
// until it calls ble.exit or ctx ends. Returns the script's exit code.
func (api *API) Run(ctx context.Context, script, name string) (int, error) {
	if err := api.engine.LoadScript(script, name); err != nil {
		return 1, err
	}
	if err := api.engine.Execute(); err != nil {
		return 1, err
	}

	select {
	case code := <-api.exitCh:
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close detaches every handler and releases the Lua state.
func (api *API) Close() {
	api.mu.Lock()
	unsubs, timers := api.unsubs, api.timers
	api.unsubs, api.timers = nil, nil
	api.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	for _, t := range timers {
		t.Stop()
	}
	api.engine.Close()
}

func (api *API) push(L *lua.State, name string, fn lua.LuaGoFunction) {
	L.PushString(name)
	L.PushGoFunction(api.engine.SafeWrapGoFunction("ble."+name, fn))
	L.SetTable(-3)
}

// result pushes true, or nil plus the message of err.
func result(L *lua.State, err error) int {
	if err != nil {
		L.PushNil()
		L.PushString(err.Error())
		return 2
	}
	L.PushBoolean(true)
	return 1
}

func (api *API) register(L *lua.State) {
	L.NewTable()

	api.push(L, "start_scan", func(L *lua.State) int {
		return result(L, api.central.StartScan())
	})
	api.push(L, "stop_scan", func(L *lua.State) int {
		return result(L, api.central.StopScan())
	})
	api.push(L, "devices", func(L *lua.State) int {
		L.NewTable()
		for i, p := range api.central.Devices() {
			L.NewTable()
			setString(L, "address", p.Address)
			setString(L, "name", p.Name)
			setInt(L, "rssi", int64(p.RSSI))
			setString(L, "manufacturer", p.Manufacturer)
			L.RawSeti(-2, i+1)
		}
		return 1
	})
	api.push(L, "device_list", func(L *lua.State) int {
		L.PushString(api.central.DeviceList())
		return 1
	})
	api.push(L, "connect", func(L *lua.State) int {
		return result(L, api.central.Connect(L.CheckString(1)))
	})
	api.push(L, "disconnect", func(L *lua.State) int {
		return result(L, api.central.Disconnect(L.CheckString(1)))
	})
	api.push(L, "state", func(L *lua.State) int {
		L.PushString(api.central.State(L.CheckString(1)).String())
		return 1
	})
	api.push(L, "read", func(L *lua.State) int {
		offsets := codec.Offsets{
			Int:   L.OptInteger(4, 0),
			Float: L.OptInteger(5, 0),
			Text:  L.OptInteger(6, 0),
		}
		return result(L, api.central.Read(L.CheckString(1), L.CheckString(2), L.CheckString(3), offsets))
	})
	api.push(L, "subscribe", func(L *lua.State) int {
		return result(L, api.central.Subscribe(L.CheckString(1), L.CheckString(2), L.CheckString(3), codec.Offsets{}))
	})
	api.push(L, "write_string", func(L *lua.State) int {
		payload := central.TextPayload(L.CheckString(4))
		return result(L, api.central.Write(L.CheckString(1), L.CheckString(2), L.CheckString(3), payload))
	})
	api.push(L, "write_int", func(L *lua.State) int {
		format, err := codec.ParseFormat(L.OptString(5, "uint8"))
		if err != nil {
			return result(L, err)
		}
		payload := central.IntPayload(int64(L.CheckInteger(4)), format, L.OptInteger(6, 0))
		return result(L, api.central.Write(L.CheckString(1), L.CheckString(2), L.CheckString(3), payload))
	})
	api.push(L, "read_rssi", func(L *lua.State) int {
		return result(L, api.central.ReadRSSI(L.CheckString(1)))
	})
	api.push(L, "services", func(L *lua.State) int {
		views, err := api.central.Services(L.CheckString(1))
		if err != nil {
			return result(L, err)
		}
		L.NewTable()
		for i, svc := range views {
			L.NewTable()
			setString(L, "uuid", svc.UUID)
			L.PushString("characteristics")
			L.NewTable()
			for j, ch := range svc.Characteristics {
				L.NewTable()
				setString(L, "uuid", ch.UUID)
				setString(L, "properties", ch.Flags)
				L.RawSeti(-2, j+1)
			}
			L.SetTable(-3)
			L.RawSeti(-2, i+1)
		}
		return 1
	})
	api.push(L, "on", func(L *lua.State) int {
		name := L.CheckString(1)
		if !L.IsFunction(2) {
			L.RaiseError("on() expects an event name and a function")
			return 0
		}
		if name != AllEvents {
			if _, err := events.ParseType(name); err != nil {
				return result(L, err)
			}
		}
		L.PushValue(2)
		ref := L.Ref(lua.LUA_REGISTRYINDEX)
		api.subscribe(name, ref)
		return result(L, nil)
	})
	api.push(L, "after", func(L *lua.State) int {
		ms := L.CheckInteger(1)
		if !L.IsFunction(2) {
			L.RaiseError("after() expects milliseconds and a function")
			return 0
		}
		L.PushValue(2)
		ref := L.Ref(lua.LUA_REGISTRYINDEX)
		api.schedule(time.Duration(ms)*time.Millisecond, ref)
		return 0
	})
	api.push(L, "exit", func(L *lua.State) int {
		code := L.OptInteger(1, 0)
		api.exitOnce.Do(func() { api.exitCh <- code })
		return 0
	})

	L.SetGlobal("ble")
}

// subscribe attaches a Lua function to the event stream. The handler runs on
// the event delivery goroutine and takes the engine lock.
func (api *API) subscribe(name string, ref int) {
	handler := func(e events.Event) {
		_ = api.engine.CallRef(ref, "on "+name, func(L *lua.State) int {
			pushEvent(L, e)
			return 1
		})
	}

	var unsub func()
	if name == AllEvents {
		unsub = api.central.OnAll(handler)
	} else {
		unsub = api.central.On(events.Type(name), handler)
	}

	api.mu.Lock()
	api.unsubs = append(api.unsubs, unsub)
	api.mu.Unlock()
}

func (api *API) schedule(d time.Duration, ref int) {
	t := time.AfterFunc(d, func() {
		_ = api.engine.CallRef(ref, "after", nil)
		api.engine.Unref(ref)
	})
	api.mu.Lock()
	api.timers = append(api.timers, t)
	api.mu.Unlock()
}

func setString(L *lua.State, key, value string) {
	L.PushString(value)
	L.SetField(-2, key)
}

func setInt(L *lua.State, key string, value int64) {
	L.PushInteger(value)
	L.SetField(-2, key)
}

// pushEvent pushes an event as a table with the same keys as its JSON form.
func pushEvent(L *lua.State, e events.Event) {
	L.NewTable()
	setString(L, "type", string(e.Type))
	setString(L, "address", e.Address)
	setString(L, "name", e.Name)
	if e.Type == events.RSSIChanged || e.Type == events.DeviceFound {
		setInt(L, "rssi", int64(e.RSSI))
		setString(L, "source", string(e.Source))
	}
	if e.Characteristic != "" {
		setString(L, "service", e.Service)
		setString(L, "characteristic", e.Characteristic)
		setInt(L, "int", e.Value.Int)
		L.PushNumber(float64(e.Value.Float))
		L.SetField(-2, "float")
		setString(L, "text", e.Value.Text)
		setString(L, "raw", e.Value.Raw)
	}
	if e.Err != nil {
		setString(L, "error", fmt.Sprint(e.Err))
	}
}
