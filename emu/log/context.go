package log

// A Context adds fields to every entry logged while it is registered, the
// machine uses one to stamp entries with the current cycle.
type Context interface {
	AddLogContext(e *EntryZ)
}

var contexts []Context

func AddContext(c Context) {
	contexts = append(contexts, c)
}

func RemoveContext(c Context) {
	for i := range contexts {
		if contexts[i] == c {
			contexts = append(contexts[:i], contexts[i+1:]...)
			return
		}
	}
}

func contextFields() Fields {
	if len(contexts) == 0 {
		return nil
	}

	var z EntryZ
	for _, c := range contexts {
		c.AddLogContext(&z)
	}
	fields := make(Fields, z.zfidx)
	for i := range z.zfbuf[:z.zfidx] {
		fields[z.zfbuf[i].Key] = z.zfbuf[i].Value()
	}
	return fields
}
