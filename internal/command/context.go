package command

// Context is the immutable bundle of collaborator handles passed to every
// execution: the mutation authority, the identity registry and the settings.
// The handles are opaque here; only executors know their concrete types.
//
// Derive new contexts with the With* methods. The receiver is never changed,
// so a context captured by an in-flight command stays stable.
type Context struct {
	authority any
	registry  any
	settings  any
}

// NewContext validates that every handle is present.
func NewContext(authority, registry, settings any) (Context, error) {
	if authority == nil {
		return Context{}, missing("authority")
	}
	if registry == nil {
		return Context{}, missing("registry")
	}
	if settings == nil {
		return Context{}, missing("settings")
	}
	return Context{authority: authority, registry: registry, settings: settings}, nil
}

// Valid reports whether c was built by NewContext. The zero Context is not.
func (c Context) Valid() bool {
	return c.authority != nil && c.registry != nil && c.settings != nil
}

func (c Context) Authority() any { return c.authority }
func (c Context) Registry() any  { return c.registry }
func (c Context) Settings() any  { return c.settings }

// WithSettings returns a copy of c using settings.
func (c Context) WithSettings(settings any) (Context, error) {
	if settings == nil {
		return Context{}, missing("settings")
	}
	c.settings = settings
	return c, nil
}

// WithRegistry returns a copy of c using registry.
func (c Context) WithRegistry(registry any) (Context, error) {
	if registry == nil {
		return Context{}, missing("registry")
	}
	c.registry = registry
	return c, nil
}

// WithAuthority returns a copy of c using authority.
func (c Context) WithAuthority(authority any) (Context, error) {
	if authority == nil {
		return Context{}, missing("authority")
	}
	c.authority = authority
	return c, nil
}
