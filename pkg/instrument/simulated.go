package instrument

import (
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
)

// SimulatedHardware wires the simulated loopback as the peripherals.
func SimulatedHardware(sim *loopback.Simulator, noiseShape capture.NoiseFrameShape) Hardware {
	return Hardware{
		PhaseIncrement:    []ConfigSender{sim.Sender(loopback.RolePhaseIncrement)},
		DACAttenuation:    []ConfigSender{sim.Sender(loopback.RoleDACAttenuation)},
		DACScale:          []ConfigSender{sim.Sender(loopback.RoleDACScale)},
		VGA:               sim.Sender(loopback.RoleVGA),
		NoiseBufferConfig: sim.Sender(loopback.RoleNoiseBufferConfig),
		CaptureTrigger:    sim.Switch(loopback.SwitchCaptureTrigger),
		TriggerMode:       sim.Switch(loopback.SwitchTriggerMode),
		ADCSelect:         sim.Switch(loopback.SwitchADCSelect),
		Acquirer:          sim,
		NoiseAcquirer:     sim.NoiseBuffer(noiseShape),
	}
}
