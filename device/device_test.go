// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device_test

import (
	"io"
	"testing"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/device"
	"code.hybscloud.com/axisdma/dispatch"
	"code.hybscloud.com/axisdma/hwadapter"
)

// fakeAdapter is a minimal hwadapter.Adapter that records calls; IRQ
// draining is exercised in the hwadapter package's own tests, so Device
// tests drive completions directly through Dispatch.
type fakeAdapter struct {
	initCalls   int
	enableCalls int
	clearCalls  int
	sentBuffers []*buffer.Buffer
	returnedRX  []*buffer.Buffer
	commandCode uint32
}

func (a *fakeAdapter) Init(ctx hwadapter.DeviceContext, destMask [4]uint64) error {
	a.initCalls++
	return nil
}
func (a *fakeAdapter) Enable(ctx hwadapter.DeviceContext) error { a.enableCalls++; return nil }
func (a *fakeAdapter) Clear(ctx hwadapter.DeviceContext) error  { a.clearCalls++; return nil }
func (a *fakeAdapter) IRQ(ctx hwadapter.DeviceContext) bool     { return false }
func (a *fakeAdapter) SendBuffer(ctx hwadapter.DeviceContext, buf *buffer.Buffer) error {
	a.sentBuffers = append(a.sentBuffers, buf)
	return nil
}
func (a *fakeAdapter) ReturnRXBuffer(ctx hwadapter.DeviceContext, buf *buffer.Buffer) error {
	a.returnedRX = append(a.returnedRX, buf)
	return nil
}
func (a *fakeAdapter) Command(ctx hwadapter.DeviceContext, code uint32, arg []byte) (int32, error) {
	a.commandCode = code
	return 0, nil
}
func (a *fakeAdapter) SeqShow(ctx hwadapter.DeviceContext, w io.Writer) {}

func allowAll() dispatch.Mask {
	var m dispatch.Mask
	for d := 0; d < 256; d++ {
		m.Set(uint8(d))
	}
	return m
}

func newTestDevice(t *testing.T) (*device.Device, *fakeAdapter) {
	t.Helper()
	a := &fakeAdapter{}
	cfg := device.Config{TxCount: 4, RxCount: 4, Size: 1024, Mode: buffer.Coherent}
	dev, err := device.New(cfg, a, allowAll(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return dev, a
}

func TestNew_RejectsNilAdapter(t *testing.T) {
	cfg := device.Config{TxCount: 1, RxCount: 1, Size: 64}
	if _, err := device.New(cfg, nil, allowAll(), nil, nil); err == nil {
		t.Fatal("New with nil adapter should fail")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	a := &fakeAdapter{}
	cfg := device.Config{TxCount: 0, RxCount: 1, Size: 64}
	if _, err := device.New(cfg, a, allowAll(), nil, nil); err == nil {
		t.Fatal("New with TxCount=0 should fail")
	}
}

func TestNew_CallsAdapterInit(t *testing.T) {
	_, a := newTestDevice(t)
	if a.initCalls != 1 {
		t.Fatalf("adapter.Init called %d times, want 1", a.initCalls)
	}
}

func TestOpenCloseSubscriber_ReclaimsQueuedBuffers(t *testing.T) {
	dev, _ := newTestDevice(t)

	sub, err := dev.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mask := dispatch.Mask{}
	mask.Set(9)
	if err := dev.SetSubscriberMask(sub, mask); err != nil {
		t.Fatalf("SetSubscriberMask: %v", err)
	}

	rxBuf := dev.RXBufferByIndex(4) // first RX index: base offset == TxCount
	if rxBuf == nil {
		t.Fatal("expected an RX buffer at index 4")
	}
	rxBuf.Dest = 9

	if !dev.Dispatch(9, rxBuf) {
		t.Fatal("Dispatch to claimed destination should deliver")
	}

	dev.CloseSubscriber(sub)

	if rxBuf.State() != buffer.Free {
		t.Fatalf("buffer state after CloseSubscriber = %v, want FREE", rxBuf.State())
	}
}

func TestDispatch_RecordsStatsAndUndelivered(t *testing.T) {
	dev, _ := newTestDevice(t)

	rxBuf := dev.RXBufferByIndex(4)
	rxBuf.Dest = 200

	if dev.Dispatch(200, rxBuf) {
		t.Fatal("Dispatch to an unclaimed destination should report undelivered")
	}

	snap := dev.Stats()
	if snap.PerDest[200] != 1 {
		t.Fatalf("PerDest[200] = %d, want 1", snap.PerDest[200])
	}
	if snap.Undelivered != 1 {
		t.Fatalf("Undelivered = %d, want 1", snap.Undelivered)
	}
}

func TestTeardown_ForcesAllBuffersFree(t *testing.T) {
	dev, _ := newTestDevice(t)

	txBuf, err := dev.AcquireTXBuffer()
	if err != nil {
		t.Fatalf("AcquireTXBuffer: %v", err)
	}
	if err := dev.Send(txBuf); err != nil {
		t.Fatalf("Send: %v", err)
	}

	dev.Teardown()

	if _, err := dev.Open(); err == nil {
		t.Fatal("Open after Teardown should fail")
	}
}
