package forward

// commandPaths maps each device type to the command vocabulary its firmware
// exposes and the path each command lives at on the device.
var commandPaths = map[string]map[string]string{
	"rear-camera": {
		"up":     "/api/v1/rear-camera/up",
		"down":   "/api/v1/rear-camera/down",
		"status": "/api/v1/rear-camera/status",
	},
}

// CommandPath resolves the device-side path for a command. The second
// return is false when the device type or the command is not defined.
func CommandPath(deviceType, command string) (string, bool) {
	commands, ok := commandPaths[deviceType]
	if !ok {
		return "", false
	}
	path, ok := commands[command]
	return path, ok
}

// Commands returns the command vocabulary for a device type, or nil for an
// unknown type. Used by the API to describe rejections.
func Commands(deviceType string) []string {
	commands, ok := commandPaths[deviceType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}
