package tools

import (
	"fmt"

	"github.com/felixgeelhaar/bolt/v3"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/michaelbrown/toolselector/internal/logging"
	"github.com/michaelbrown/toolselector/internal/mcpconfig"
)

// Registry holds the tool entries of one configuration file and keeps the
// primary and backup documents in step with them. Enabled tools live in the
// primary document; disabled tools live in the backup document.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	store     *mcpconfig.Store
	tools     *orderedmap.OrderedMap[string, *Tool]
	base      *mcpconfig.Document // last loaded primary document, for its other top-level keys
	conflicts []string
	log       *bolt.Logger

	// OnChange, if set, is called after every mutating call, including
	// calls that failed a precondition.
	OnChange func(Change)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *bolt.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty registry bound to store. Call Load to read
// the configuration file.
func NewRegistry(store *mcpconfig.Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		tools: orderedmap.New[string, *Tool](),
		base:  mcpconfig.NewDocument(),
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a registry and loads it from the configuration file.
func Open(store *mcpconfig.Store, opts ...Option) (*Registry, error) {
	r := NewRegistry(store, opts...)
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Store returns the underlying configuration store.
func (r *Registry) Store() *mcpconfig.Store {
	return r.store
}

// Load replaces the in-memory tools with the contents of the configuration
// file. Every loaded tool is enabled. On error the registry is left as it was.
func (r *Registry) Load() error {
	doc, err := r.store.ReadPrimary()
	if err != nil {
		return fmt.Errorf("loading tools: %w", err)
	}

	loaded := orderedmap.New[string, *Tool]()
	for pair := doc.Servers.Oldest(); pair != nil; pair = pair.Next() {
		loaded.Set(pair.Key, &Tool{Name: pair.Key, Config: pair.Value, Enabled: true})
	}
	r.tools = loaded
	r.base = doc

	// A name in both files is kept from the configuration file. The stale
	// backup entry stays on disk until the tool is disabled again.
	r.conflicts = nil
	backup, _ := r.store.ReadBackup()
	for _, name := range backup.Names() {
		if doc.Has(name) {
			r.conflicts = append(r.conflicts, name)
			r.log.Warn().Str("tool", name).Msg("tool present in both configuration and backup, using configuration")
		}
	}

	r.log.Info().Int("count", r.tools.Len()).Msg("loaded tools from configuration")
	return nil
}

// Reload re-reads the configuration file, discarding in-memory state.
func (r *Registry) Reload() error {
	err := r.Load()
	change := Change{Action: ActionReload, Tools: r.names(), OK: err == nil}
	if err != nil {
		change.Message = err.Error()
	}
	r.notify(change)
	return err
}

// Conflicts returns the names found in both files at the last Load.
func (r *Registry) Conflicts() []string {
	return append([]string(nil), r.conflicts...)
}

// Tools returns all tools in registry order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, copyTool(pair.Value))
	}
	return out
}

// Tool returns the named tool.
func (r *Registry) Tool(name string) (Tool, bool) {
	t, ok := r.tools.Get(name)
	if !ok {
		return Tool{}, false
	}
	return copyTool(t), true
}

// BackupOnly returns the tools that exist only in the backup file, such as
// tools disabled in an earlier session. They are reported as disabled.
func (r *Registry) BackupOnly() ([]Tool, mcpconfig.Warnings) {
	backup, warnings := r.store.ReadBackup()
	var out []Tool
	for pair := backup.Servers.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := r.tools.Get(pair.Key); ok {
			continue
		}
		out = append(out, Tool{Name: pair.Key, Config: pair.Value})
	}
	return out, warnings
}

// Add inserts a new enabled tool and saves the configuration.
func (r *Registry) Add(name string, cfg mcpconfig.ToolConfig) Result {
	if err := r.insert(name, cfg, true); err != nil {
		return r.fail(ActionAdd, name, err)
	}
	err := r.save()
	r.log.Info().Str("tool", name).Msg("added tool")
	return r.done(ActionAdd, []string{name}, Result{OK: true, Err: err})
}

// Update replaces the configuration of an existing tool, keeping its
// enabled state.
func (r *Registry) Update(name string, cfg mcpconfig.ToolConfig) Result {
	t, ok := r.tools.Get(name)
	if !ok {
		return r.fail(ActionUpdate, name, notFound(name))
	}
	if err := cfg.Check(name); err != nil {
		return r.fail(ActionUpdate, name, err)
	}

	t.Config = cfg.Clone()
	err := r.save()
	r.log.Info().Str("tool", name).Msg("updated tool")
	return r.done(ActionUpdate, []string{name}, Result{OK: true, Err: err})
}

// Enable turns a tool on. Its configuration is restored from the backup
// file when the backup holds it. A tool found only in the backup file, such
// as one disabled in an earlier session, is adopted first.
func (r *Registry) Enable(name string) Result {
	t, ok := r.tools.Get(name)
	if !ok {
		backup, warnings := r.store.ReadBackup()
		cfg, found := backup.Servers.Get(name)
		if !found {
			res := r.fail(ActionEnable, name, notFound(name))
			res.Warnings = warnings
			return res
		}
		t = &Tool{Name: name, Config: cfg}
		r.tools.Set(name, t)
		r.log.Info().Str("tool", name).Msg("adopted tool from backup")
	}
	if t.Enabled {
		r.log.Info().Str("tool", name).Msg("tool is already enabled")
		return Result{OK: true}
	}

	cfg, found, warnings := r.store.RestoreTool(name)
	if found {
		t.Config = cfg
	}
	t.Enabled = true
	err := r.save()
	r.log.Info().Str("tool", name).Msg("enabled tool")
	return r.done(ActionEnable, []string{name}, Result{OK: true, Err: err, Warnings: warnings})
}

// Disable turns a tool off, moving its configuration to the backup file.
func (r *Registry) Disable(name string) Result {
	t, ok := r.tools.Get(name)
	if !ok {
		return r.fail(ActionDisable, name, notFound(name))
	}
	if !t.Enabled {
		r.log.Info().Str("tool", name).Msg("tool is already disabled")
		return Result{OK: true}
	}

	warnings := r.store.BackupTool(name, t.Config)
	t.Enabled = false
	err := r.save()
	r.log.Info().Str("tool", name).Msg("disabled tool")
	return r.done(ActionDisable, []string{name}, Result{OK: true, Err: err, Warnings: warnings})
}

// Remove deletes a tool. An enabled tool is copied to the backup file first
// so the removal can be undone.
func (r *Registry) Remove(name string) Result {
	t, ok := r.tools.Get(name)
	if !ok {
		return r.fail(ActionRemove, name, notFound(name))
	}

	var warnings mcpconfig.Warnings
	if t.Enabled {
		warnings = r.store.BackupTool(name, t.Config)
	}
	r.tools.Delete(name)
	err := r.save()
	r.log.Info().Str("tool", name).Msg("removed tool")
	return r.done(ActionRemove, []string{name}, Result{OK: true, Err: err, Warnings: warnings})
}

// Adopt brings a tool that exists only in the backup file into the registry
// as disabled, so that it can be enabled.
func (r *Registry) Adopt(name string) Result {
	if _, ok := r.tools.Get(name); ok {
		return r.fail(ActionAdopt, name, fmt.Errorf("%w: %s", ErrToolExists, name))
	}

	backup, warnings := r.store.ReadBackup()
	cfg, ok := backup.Servers.Get(name)
	if !ok {
		res := r.fail(ActionAdopt, name, fmt.Errorf("%w in backup: %s", ErrToolNotFound, name))
		res.Warnings = warnings
		return res
	}

	r.tools.Set(name, &Tool{Name: name, Config: cfg, Enabled: false})
	r.log.Info().Str("tool", name).Msg("adopted tool from backup")
	return r.done(ActionAdopt, []string{name}, Result{OK: true, Warnings: warnings})
}

// AddFromJSON validates text and adds every tool it defines, in document
// order. Names that already exist are skipped. It succeeds when at least one
// tool was added.
func (r *Registry) AddFromJSON(text string) ImportResult {
	doc, err := mcpconfig.Validate(text)
	if err != nil {
		return ImportResult{Result: Result{Err: err}, Added: []string{}}
	}

	res := ImportResult{Added: []string{}}
	for pair := doc.Servers.Oldest(); pair != nil; pair = pair.Next() {
		if err := r.insert(pair.Key, pair.Value, true); err != nil {
			res.Skipped = append(res.Skipped, pair.Key)
			continue
		}
		res.Added = append(res.Added, pair.Key)
	}

	if len(res.Added) == 0 {
		res.Err = ErrNothingAdded
		r.notify(Change{Action: ActionImport, Tools: res.Skipped, Message: ErrNothingAdded.Error()})
		return res
	}

	res.OK = true
	res.Err = r.save()
	r.log.Info().Int("count", len(res.Added)).Msg("added tools from JSON")
	res.Result = r.done(ActionImport, res.Added, res.Result)
	return res
}

func (r *Registry) insert(name string, cfg mcpconfig.ToolConfig, enabled bool) error {
	if _, exists := r.tools.Get(name); exists {
		r.log.Warn().Str("tool", name).Msg("tool already exists")
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}
	// A backup-only name is a disabled tool from an earlier session.
	if backup, _ := r.store.ReadBackup(); backup.Has(name) {
		r.log.Warn().Str("tool", name).Msg("tool already exists in backup")
		return fmt.Errorf("%w in backup: %s (enable it instead)", ErrToolExists, name)
	}
	if err := cfg.Check(name); err != nil {
		return err
	}
	r.tools.Set(name, &Tool{Name: name, Config: cfg.Clone(), Enabled: enabled})
	return nil
}

// save rebuilds the whole configuration document from the enabled tools
// and writes it.
func (r *Registry) save() error {
	doc := r.base.Skeleton()
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Enabled {
			doc.Servers.Set(pair.Key, pair.Value.Config.Clone())
		}
	}

	if err := r.store.WritePrimary(doc); err != nil {
		r.log.Error().Err(err).Msg("error saving configuration")
		return fmt.Errorf("saving configuration: %w", err)
	}
	return nil
}

func (r *Registry) fail(action Action, name string, err error) Result {
	r.log.Warn().Str("tool", name).Str("action", string(action)).Err(err).Msg("operation failed")
	r.notify(Change{Action: action, Tools: []string{name}, Message: err.Error()})
	return Result{Err: err}
}

func (r *Registry) done(action Action, names []string, res Result) Result {
	change := Change{Action: action, Tools: names, OK: res.OK}
	if res.Err != nil {
		change.Message = res.Err.Error()
	} else if len(res.Warnings) > 0 {
		change.Message = res.Warnings.String()
	}
	r.notify(change)
	return res
}

func (r *Registry) notify(c Change) {
	if r.OnChange != nil {
		r.OnChange(c)
	}
}

func (r *Registry) names() []string {
	names := make([]string, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

func copyTool(t *Tool) Tool {
	return Tool{Name: t.Name, Config: t.Config.Clone(), Enabled: t.Enabled}
}
