package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/panel"
	"github.com/dkovalev/famvpn/internal/repository"
)

// fakeStore is an in-memory repository.Store. It enforces the same unique
// constraints the schema does (one pending invite per group+invitee, one
// member row per group+user, one instance per owner) so the service paths
// that rely on repository.ErrDuplicate stay testable without a database,
// and RunTx discards all writes when fn fails, like a real transaction.
type fakeStore struct {
	mu sync.Mutex

	users         map[int64]*models.User
	subs          map[int64]*models.Subscription
	groups        map[int64]*models.FamilyGroup
	members       map[int64]*models.FamilyMember
	invites       map[int64]*models.FamilyInvite
	devices       map[int64]*models.FamilyDevice
	notifications []*models.Notification
	instances     map[int64]*models.PersonalVPNInstance
	subUsers      map[int64]*models.PersonalVPNSubUser

	createSubUserErr error
	// returned by the next RunTx at commit time (after fn succeeds), with
	// the writes rolled back; models a commit-time unique violation.
	commitErr error

	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[int64]*models.User),
		subs:      make(map[int64]*models.Subscription),
		groups:    make(map[int64]*models.FamilyGroup),
		members:   make(map[int64]*models.FamilyMember),
		invites:   make(map[int64]*models.FamilyInvite),
		devices:   make(map[int64]*models.FamilyDevice),
		instances: make(map[int64]*models.PersonalVPNInstance),
		subUsers:  make(map[int64]*models.PersonalVPNSubUser),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func cloneMap[T any](src map[int64]*T) map[int64]*T {
	out := make(map[int64]*T, len(src))
	for k, v := range src {
		copied := *v
		out[k] = &copied
	}
	return out
}

// txState is the snapshot RunTx restores on rollback.
type txState struct {
	users         map[int64]*models.User
	subs          map[int64]*models.Subscription
	groups        map[int64]*models.FamilyGroup
	members       map[int64]*models.FamilyMember
	invites       map[int64]*models.FamilyInvite
	devices       map[int64]*models.FamilyDevice
	notifications []*models.Notification
	instances     map[int64]*models.PersonalVPNInstance
	subUsers      map[int64]*models.PersonalVPNSubUser
	nextID        int64
}

func (f *fakeStore) snapshot() txState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return txState{
		users:         cloneMap(f.users),
		subs:          cloneMap(f.subs),
		groups:        cloneMap(f.groups),
		members:       cloneMap(f.members),
		invites:       cloneMap(f.invites),
		devices:       cloneMap(f.devices),
		notifications: append([]*models.Notification(nil), f.notifications...),
		instances:     cloneMap(f.instances),
		subUsers:      cloneMap(f.subUsers),
		nextID:        f.nextID,
	}
}

func (f *fakeStore) restore(s txState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = s.users
	f.subs = s.subs
	f.groups = s.groups
	f.members = s.members
	f.invites = s.invites
	f.devices = s.devices
	f.notifications = s.notifications
	f.instances = s.instances
	f.subUsers = s.subUsers
	f.nextID = s.nextID
}

func (f *fakeStore) RunTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	saved := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(saved)
		return err
	}
	if err := f.commitErr; err != nil {
		f.commitErr = nil
		f.restore(saved)
		return err
	}
	return nil
}

func (f *fakeStore) Users() repository.UserRepository                 { return (*fakeUsers)(f) }
func (f *fakeStore) Subscriptions() repository.SubscriptionRepository { return (*fakeSubs)(f) }
func (f *fakeStore) Groups() repository.FamilyGroupRepository         { return (*fakeGroups)(f) }
func (f *fakeStore) Members() repository.FamilyMemberRepository       { return (*fakeMembers)(f) }
func (f *fakeStore) Invites() repository.FamilyInviteRepository       { return (*fakeInvites)(f) }
func (f *fakeStore) Devices() repository.FamilyDeviceRepository       { return (*fakeDevices)(f) }
func (f *fakeStore) Notifications() repository.NotificationRepository { return (*fakeNotifications)(f) }
func (f *fakeStore) PersonalVPN() repository.PersonalVPNRepository    { return (*fakePersonalVPN)(f) }

type fakeUsers fakeStore

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, normalized string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if NormalizeHandle(u.Username) == normalized {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeSubs fakeStore

func (f *fakeSubs) GetByUserID(_ context.Context, userID int64) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[userID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

type fakeGroups fakeStore

func (f *fakeGroups) Create(_ context.Context, group *models.FamilyGroup) (*models.FamilyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.OwnerUserID == group.OwnerUserID || g.SubscriptionID == group.SubscriptionID {
			return nil, repository.ErrDuplicate
		}
	}
	group.ID = (*fakeStore)(f).id()
	group.CreatedAt = time.Now().UTC()
	copied := *group
	f.groups[group.ID] = &copied
	return group, nil
}

func (f *fakeGroups) GetByID(_ context.Context, id int64) (*models.FamilyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (f *fakeGroups) GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyGroup, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeGroups) GetByOwner(_ context.Context, ownerUserID int64) (*models.FamilyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.OwnerUserID == ownerUserID {
			copied := *g
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeGroups) ExistsForOwner(_ context.Context, ownerUserID, excludeGroupID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.OwnerUserID == ownerUserID && g.ID != excludeGroupID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroups) RebindSubscription(_ context.Context, groupID, subscriptionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[groupID]; ok {
		g.SubscriptionID = subscriptionID
	}
	return nil
}

type fakeMembers fakeStore

func (f *fakeMembers) Create(_ context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.FamilyGroupID == member.FamilyGroupID && m.UserID == member.UserID {
			return nil, repository.ErrDuplicate
		}
	}
	member.ID = (*fakeStore)(f).id()
	copied := *member
	f.members[member.ID] = &copied
	return member, nil
}

func (f *fakeMembers) Get(_ context.Context, groupID, userID int64) (*models.FamilyMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.FamilyGroupID == groupID && m.UserID == userID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMembers) GetActiveByUser(_ context.Context, userID int64) (*models.FamilyMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.UserID == userID && m.Status == models.MemberActive {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMembers) GetActiveForUpdate(_ context.Context, groupID, userID int64) (*models.FamilyMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.FamilyGroupID == groupID && m.UserID == userID && m.Status == models.MemberActive {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMembers) CountActive(_ context.Context, groupID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.members {
		if m.FamilyGroupID == groupID && m.Status == models.MemberActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeMembers) ListActiveUserIDs(_ context.Context, groupID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, m := range f.members {
		if m.FamilyGroupID == groupID && m.Status == models.MemberActive {
			ids = append(ids, m.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeMembers) ListByGroup(_ context.Context, groupID int64, statuses []string) ([]*models.FamilyMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*models.FamilyMember
	for _, m := range f.members {
		if m.FamilyGroupID == groupID && wanted[m.Status] {
			copied := *m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMembers) ExistsActive(_ context.Context, userID, excludeGroupID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.UserID == userID && m.Status == models.MemberActive && m.FamilyGroupID != excludeGroupID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembers) Update(_ context.Context, member *models.FamilyMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *member
	f.members[member.ID] = &copied
	return nil
}

type fakeInvites fakeStore

func (f *fakeInvites) Create(_ context.Context, invite *models.FamilyInvite) (*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if invite.Status == models.InvitePending {
		for _, inv := range f.invites {
			if inv.FamilyGroupID == invite.FamilyGroupID &&
				inv.InviteeUserID == invite.InviteeUserID &&
				inv.Status == models.InvitePending {
				return nil, repository.ErrDuplicate
			}
		}
	}
	invite.ID = (*fakeStore)(f).id()
	invite.CreatedAt = time.Now().UTC()
	copied := *invite
	f.invites[invite.ID] = &copied
	return invite, nil
}

func (f *fakeInvites) GetByID(_ context.Context, id int64) (*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return nil, nil
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeInvites) GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyInvite, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeInvites) GetPending(_ context.Context, groupID, inviteeUserID int64) (*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invites {
		if inv.FamilyGroupID == groupID && inv.InviteeUserID == inviteeUserID && inv.Status == models.InvitePending {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeInvites) ListPendingByGroup(_ context.Context, groupID int64) ([]*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FamilyInvite
	for _, inv := range f.invites {
		if inv.FamilyGroupID == groupID && inv.Status == models.InvitePending {
			copied := *inv
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeInvites) ListPendingForInvitee(_ context.Context, inviteeUserID int64) ([]*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FamilyInvite
	for _, inv := range f.invites {
		if inv.InviteeUserID == inviteeUserID && inv.Status == models.InvitePending {
			copied := *inv
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeInvites) SetStatus(_ context.Context, id int64, status string, decidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return nil
	}
	inv.Status = status
	inv.DecidedAt = &decidedAt
	return nil
}

func (f *fakeInvites) ExpirePending(_ context.Context, now time.Time) ([]*models.FamilyInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FamilyInvite
	for _, inv := range f.invites {
		if inv.Status == models.InvitePending && inv.ExpiredAt(now) {
			inv.Status = models.InviteExpired
			decided := now
			inv.DecidedAt = &decided
			copied := *inv
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeDevices fakeStore

func (f *fakeDevices) Create(_ context.Context, device *models.FamilyDevice) (*models.FamilyDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.FamilyGroupID == device.FamilyGroupID && d.HWID == device.HWID {
			return nil, repository.ErrDuplicate
		}
	}
	device.ID = (*fakeStore)(f).id()
	device.CreatedAt = time.Now().UTC()
	device.LastSeenAt = device.CreatedAt
	copied := *device
	f.devices[device.ID] = &copied
	return device, nil
}

func (f *fakeDevices) GetByHWID(_ context.Context, groupID int64, hwid string) (*models.FamilyDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.FamilyGroupID == groupID && d.HWID == hwid {
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeDevices) ListByGroup(_ context.Context, groupID int64) ([]*models.FamilyDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FamilyDevice
	for _, d := range f.devices {
		if d.FamilyGroupID == groupID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDevices) ListByOwner(_ context.Context, groupID, ownerUserID int64) ([]*models.FamilyDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FamilyDevice
	for _, d := range f.devices {
		if d.FamilyGroupID == groupID && d.OwnerUserID == ownerUserID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDevices) Touch(_ context.Context, id int64, platform, deviceModel string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.devices[id]; ok {
		d.Platform = platform
		d.DeviceModel = deviceModel
		d.LastSeenAt = seenAt
	}
	return nil
}

func (f *fakeDevices) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, id)
	return nil
}

type fakeNotifications fakeStore

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = (*fakeStore)(f).id()
	n.CreatedAt = time.Now().UTC()
	copied := *n
	f.notifications = append(f.notifications, &copied)
	return n, nil
}

type fakePersonalVPN fakeStore

func (f *fakePersonalVPN) CreateInstance(_ context.Context, inst *models.PersonalVPNInstance) (*models.PersonalVPNInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.instances {
		if existing.OwnerUserID == inst.OwnerUserID {
			return nil, repository.ErrDuplicate
		}
	}
	inst.ID = (*fakeStore)(f).id()
	inst.CreatedAt = time.Now().UTC()
	copied := *inst
	f.instances[inst.ID] = &copied
	return inst, nil
}

func (f *fakePersonalVPN) GetInstanceByID(_ context.Context, id int64) (*models.PersonalVPNInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return nil, nil
	}
	copied := *inst
	return &copied, nil
}

func (f *fakePersonalVPN) GetInstanceByOwner(_ context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.instances {
		if inst.OwnerUserID == ownerUserID {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePersonalVPN) GetInstanceByOwnerForUpdate(ctx context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error) {
	return f.GetInstanceByOwner(ctx, ownerUserID)
}

func (f *fakePersonalVPN) UpdateInstance(_ context.Context, inst *models.PersonalVPNInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *inst
	f.instances[inst.ID] = &copied
	return nil
}

func (f *fakePersonalVPN) CountActiveSubUsers(_ context.Context, instanceID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, su := range f.subUsers {
		if su.InstanceID == instanceID && su.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakePersonalVPN) ListSubUsers(_ context.Context, instanceID int64) ([]*models.PersonalVPNSubUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PersonalVPNSubUser
	for _, su := range f.subUsers {
		if su.InstanceID == instanceID && su.DeletedAt == nil {
			copied := *su
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePersonalVPN) GetSubUser(_ context.Context, id int64) (*models.PersonalVPNSubUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	su, ok := f.subUsers[id]
	if !ok {
		return nil, nil
	}
	copied := *su
	return &copied, nil
}

func (f *fakePersonalVPN) CreateSubUser(_ context.Context, u *models.PersonalVPNSubUser) (*models.PersonalVPNSubUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSubUserErr != nil {
		return nil, f.createSubUserErr
	}
	u.ID = (*fakeStore)(f).id()
	u.CreatedAt = time.Now().UTC()
	copied := *u
	f.subUsers[u.ID] = &copied
	return u, nil
}

func (f *fakePersonalVPN) SoftDeleteSubUser(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if su, ok := f.subUsers[id]; ok {
		su.DeletedAt = &at
	}
	return nil
}

// fakePanel is a scripted panel.Client recording every call.
type fakePanel struct {
	mu sync.Mutex

	devices    map[string][]panel.Device
	nodes      map[string]*panel.Node
	createErr  error
	restartErr error
	deleteErr  error
	created    []panel.CreateUserRequest
	deletedIDs []string
	deletedHW  []string
	restarted  []string
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		devices: make(map[string][]panel.Device),
		nodes:   make(map[string]*panel.Node),
	}
}

func (p *fakePanel) GetUserDevices(_ context.Context, identity string) (*panel.DeviceList, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.devices[identity]
	return &panel.DeviceList{Devices: list, Total: len(list)}, nil
}

func (p *fakePanel) CreateUser(_ context.Context, req panel.CreateUserRequest) (*panel.RemoteUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	return &panel.RemoteUser{UUID: "remote-" + req.Username, SubscriptionURL: "https://sub/" + req.Username}, nil
}

func (p *fakePanel) DeleteUser(_ context.Context, identity string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return false, p.deleteErr
	}
	p.deletedIDs = append(p.deletedIDs, identity)
	return true, nil
}

func (p *fakePanel) DeleteDevice(_ context.Context, ownerIdentity, hwid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deletedHW = append(p.deletedHW, hwid)
	return nil
}

func (p *fakePanel) GetNode(_ context.Context, nodeID string) (*panel.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodes[nodeID], nil
}

func (p *fakePanel) RestartNode(_ context.Context, nodeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.restartErr != nil {
		return p.restartErr
	}
	p.restarted = append(p.restarted, nodeID)
	return nil
}

// fakeMessenger records outbound chat messages.
type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	TelegramID int64
	Text       string
	Actions    []MessageAction
}

func (m *fakeMessenger) SendMessage(_ context.Context, telegramID int64, text string, actions []MessageAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{TelegramID: telegramID, Text: text, Actions: actions})
	return nil
}

// fakeRealtime records live-channel pushes and can fail on demand.
type fakeRealtime struct {
	mu      sync.Mutex
	pushed  []pushedEvent
	pushErr error
}

type pushedEvent struct {
	UserID int64
	Event  map[string]any
}

func (r *fakeRealtime) Push(_ context.Context, userID int64, event map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushed = append(r.pushed, pushedEvent{UserID: userID, Event: event})
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type testEnv struct {
	svc       *Service
	store     *fakeStore
	panel     *fakePanel
	messenger *fakeMessenger
	realtime  *fakeRealtime
	now       time.Time
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	p := newFakePanel()
	m := &fakeMessenger{}
	rt := &fakeRealtime{}
	svc := New(store, p, m, rt, quietLogger())
	env := &testEnv{svc: svc, store: store, panel: p, messenger: m, realtime: rt,
		now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) addUser(id, telegramID int64, username string) *models.User {
	u := &models.User{ID: id, TelegramID: telegramID, Username: username, IsActive: true}
	e.store.users[id] = u
	if id > e.store.nextID {
		e.store.nextID = id
	}
	return u
}

func (e *testEnv) addSubscription(userID int64, status string, endsIn time.Duration, tariff *models.Tariff) *models.Subscription {
	e.store.nextID++
	sub := &models.Subscription{
		ID:          e.store.nextID,
		UserID:      userID,
		Status:      status,
		StartDate:   e.now.Add(-24 * time.Hour),
		EndDate:     e.now.Add(endsIn),
		DeviceLimit: 5,
		Tariff:      tariff,
	}
	if tariff != nil {
		sub.TariffID = tariff.ID
		sub.DeviceLimit = tariff.DeviceLimit
	}
	e.store.subs[userID] = sub
	return sub
}

func familyTariff(maxMembers int) *models.Tariff {
	return &models.Tariff{
		ID:               1,
		Name:             "Family",
		IsActive:         true,
		DeviceLimit:      5,
		FamilyEnabled:    true,
		FamilyMaxMembers: maxMembers,
	}
}

func soloTariff() *models.Tariff {
	return &models.Tariff{ID: 2, Name: "Solo", IsActive: true, DeviceLimit: 3}
}
