package profile

type fakeHandle struct {
	setpoint   float64
	pv         float64
	running    bool
	locked     bool
	startErr   error
	startCalls int
	stopCalls  int
	spLog      []float64
}

func (f *fakeHandle) GetSetpoint() float64 { return f.setpoint }
func (f *fakeHandle) SetSetpointFromProfile(sp float64) {
	if sp < MinSetpointC {
		sp = MinSetpointC
	}
	if sp > MaxSetpointC {
		sp = MaxSetpointC
	}
	f.setpoint = sp
	f.spLog = append(f.spLog, sp)
}
func (f *fakeHandle) SetProfileSetpointLock(locked bool) { f.locked = locked }
func (f *fakeHandle) GetProcessValue() float64           { return f.pv }
func (f *fakeHandle) IsRunning() bool                    { return f.running }
func (f *fakeHandle) Start() error {
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeHandle) Stop() error {
	f.stopCalls++
	f.running = false
	return nil
}
