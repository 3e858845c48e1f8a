package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu          sync.Mutex
	writes      [][]byte
	subscribeOK bool
	notifyCh    chan []byte
	disconnects int
}

func newFakeConn(subscribeOK bool) *fakeConn {
	return &fakeConn{subscribeOK: subscribeOK, notifyCh: make(chan []byte, 16)}
}

func (c *fakeConn) Subscribe(ctx context.Context) error {
	if !c.subscribeOK {
		return errors.New("no such attribute")
	}
	return nil
}

func (c *fakeConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Notifications() <-chan []byte { return c.notifyCh }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	close(c.notifyCh)
	return nil
}

func (c *fakeConn) MTU() int { return 185 }

type fakeDriver struct {
	devices []Device
	conns   map[string]*fakeConn
}

func (d *fakeDriver) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	return d.devices, nil
}

func (d *fakeDriver) Connect(ctx context.Context, address string) (LinkConn, error) {
	conn, ok := d.conns[address]
	if !ok {
		return nil, errors.New("no such device")
	}
	return conn, nil
}

func TestSessionConnectSubscribeAndDisconnect(t *testing.T) {
	conn := newFakeConn(true)
	driver := &fakeDriver{conns: map[string]*fakeConn{"AA:BB": conn}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	require.False(t, sess.IsConnected())

	err := sess.Connect(context.Background(), Device{Address: "AA:BB"})
	require.NoError(t, err)
	assert.True(t, sess.IsConnected())
	assert.Equal(t, 185, sess.MTU())
	assert.Equal(t, "AA:BB", sess.RemoteAddr())
	assert.NotEmpty(t, sess.ConnectionID())

	require.NoError(t, sess.Disconnect())
	assert.False(t, sess.IsConnected())
	assert.Equal(t, 1, conn.disconnects)

	// Disconnect is idempotent.
	require.NoError(t, sess.Disconnect())
	assert.Equal(t, 1, conn.disconnects)
}

func TestSessionConnectSubscribeFailureDisconnectsAndReportsNoGattService(t *testing.T) {
	conn := newFakeConn(false)
	driver := &fakeDriver{conns: map[string]*fakeConn{"AA:BB": conn}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	err := sess.Connect(context.Background(), Device{Address: "AA:BB"})
	require.ErrorIs(t, err, ErrNoGattService)
	assert.False(t, sess.IsConnected())
	assert.Equal(t, 1, conn.disconnects)
}

func TestSessionWriteCommandRequiresConnection(t *testing.T) {
	driver := &fakeDriver{conns: map[string]*fakeConn{}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	err := sess.WriteCommand([]byte("3:READ"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionWriteCommandForwardsToLink(t *testing.T) {
	conn := newFakeConn(true)
	driver := &fakeDriver{conns: map[string]*fakeConn{"AA:BB": conn}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	require.NoError(t, sess.Connect(context.Background(), Device{Address: "AA:BB"}))
	require.NoError(t, sess.WriteCommand([]byte("3:READ")))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.writes, 1)
	assert.Equal(t, []byte("3:READ"), conn.writes[0])
}

func TestSessionNotificationsForwardsFrames(t *testing.T) {
	conn := newFakeConn(true)
	driver := &fakeDriver{conns: map[string]*fakeConn{"AA:BB": conn}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	require.NoError(t, sess.Connect(context.Background(), Device{Address: "AA:BB"}))

	ch := sess.Notifications()
	conn.notifyCh <- []byte("NODE3:DATA:D:42%,V:12.1V,I:850.0mA,P:10285.0mW")

	select {
	case frame := <-ch:
		assert.Equal(t, "NODE3:DATA:D:42%,V:12.1V,I:850.0mA,P:10285.0mW", string(frame))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestSessionDoubleConnectFails(t *testing.T) {
	conn := newFakeConn(true)
	driver := &fakeDriver{conns: map[string]*fakeConn{"AA:BB": conn}}
	sess := NewSession(driver, nil)
	defer sess.Close()

	require.NoError(t, sess.Connect(context.Background(), Device{Address: "AA:BB"}))
	err := sess.Connect(context.Background(), Device{Address: "AA:BB"})
	require.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestScanFiltersByNamePrefix(t *testing.T) {
	driver := &fakeDriver{
		devices: []Device{
			{Address: "AA", Name: "DC-Monitor-1"},
			{Address: "BB", Name: "SomeOtherDevice"},
			{Address: "CC", Name: "ESP-BLE-MESH-7"},
		},
	}
	sess := NewSession(driver, nil)
	defer sess.Close()

	found, err := sess.Scan(context.Background(), time.Second, ScanFilter{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.ElementsMatch(t, []string{"AA", "CC"}, []string{found[0].Address, found[1].Address})
}

func TestScanFiltersByServiceUUID(t *testing.T) {
	driver := &fakeDriver{
		devices: []Device{
			{Address: "AA", Name: "Unnamed", ServiceUUIDs: []string{GatewayServiceUUID}},
			{Address: "BB", Name: "Unnamed", ServiceUUIDs: []string{"other-uuid"}},
		},
	}
	sess := NewSession(driver, nil)
	defer sess.Close()

	found, err := sess.Scan(context.Background(), time.Second, ScanFilter{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "AA", found[0].Address)
}

func TestScanBypassesFilteringWithExplicitAddress(t *testing.T) {
	driver := &fakeDriver{
		devices: []Device{
			{Address: "AA", Name: "NotAMatch"},
		},
	}
	sess := NewSession(driver, nil)
	defer sess.Close()

	found, err := sess.Scan(context.Background(), time.Second, ScanFilter{Address: "AA"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestScanEmptyReturnsErrScanEmpty(t *testing.T) {
	driver := &fakeDriver{}
	sess := NewSession(driver, nil)
	defer sess.Close()

	_, err := sess.Scan(context.Background(), time.Second, ScanFilter{})
	require.ErrorIs(t, err, ErrScanEmpty)
}
