package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"taskflow/internal/auth"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"taskflow/internal/parser"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultGracePeriod    = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

type TaskStoreConfig struct {
	// GracePeriod - окно восстановления до окончательного удаления
	GracePeriod    time.Duration
	RequestTimeout time.Duration
}

type NewSubtask struct {
	Title        string
	Description  string
	Completed    bool
	TimeEstimate *task.TimeEstimate
}

// NewTask - поля создаваемой задачи, пустые значения заменяются умолчаниями
type NewTask struct {
	Title        string
	Description  string
	Category     []string
	Tags         []string
	Priority     task.Priority
	Status       task.Status
	DueDate      *time.Time
	TimeEstimate *task.TimeEstimate
	Subtasks     []NewSubtask
}

// TaskStore - локальная коллекция задач. Локальное состояние меняется
// только после подтверждения удалённым хранилищем.
type TaskStore struct {
	repo     repo.TaskRepository
	identity auth.Identity
	clock    clockwork.Clock
	cfg      TaskStoreConfig

	// op упорядочивает изменяющие операции, mtx защищает данные
	op      sync.Mutex
	mtx     sync.RWMutex
	tasks   []*task.Task
	deleted []*task.Task
	timers  map[uuid.UUID]clockwork.Timer
	purged  map[uuid.UUID]struct{}
}

func NewTaskStore(r repo.TaskRepository, identity auth.Identity, clock clockwork.Clock, cfg TaskStoreConfig) *TaskStore {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &TaskStore{
		repo:     r,
		identity: identity,
		clock:    clock,
		cfg:      cfg,
		tasks:    []*task.Task{},
		deleted:  []*task.Task{},
		timers:   make(map[uuid.UUID]clockwork.Timer),
		purged:   make(map[uuid.UUID]struct{}),
	}
}

func (s *TaskStore) userID(ctx context.Context) (uuid.UUID, error) {
	id, err := s.identity.UserID(ctx)
	if err != nil {
		return uuid.Nil, newNotAuthenticated(err)
	}
	return id, nil
}

// Load заменяет локальную коллекцию задачами пользователя.
// При ошибке хранилища коллекция не меняется.
func (s *TaskStore) Load(ctx context.Context) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}

	s.op.Lock()
	defer s.op.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	tasks, err := s.repo.ListTasks(rctx, userID)
	if err != nil {
		logger.Error("Service: Не удалось загрузить задачи", err)
		return NewRemoteWriteFailed("load", err)
	}

	s.mtx.Lock()
	s.tasks = tasks
	s.mtx.Unlock()

	logger.Info("Service: Задачи загружены", zap.Int("count", len(tasks)))
	return nil
}

func (s *TaskStore) Add(ctx context.Context, nt NewTask) (*task.Task, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := &task.Task{
		ID:           uuid.New(),
		UserID:       userID,
		Title:        strings.TrimSpace(nt.Title),
		Description:  nt.Description,
		Category:     task.NormalizeCategory(nt.Category),
		Tags:         task.NormalizeTags(nt.Tags),
		Priority:     nt.Priority,
		Status:       nt.Status,
		DueDate:      nt.DueDate,
		TimeEstimate: nt.TimeEstimate,
		CreatedAt:    now,
		UpdatedAt:    now,
		Dependencies: []uuid.UUID{},
		Subtasks:     make([]task.Subtask, 0, len(nt.Subtasks)),
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	for i, st := range nt.Subtasks {
		t.Subtasks = append(t.Subtasks, task.Subtask{
			ID:           uuid.New(),
			Title:        strings.TrimSpace(st.Title),
			Description:  st.Description,
			Completed:    st.Completed,
			TimeEstimate: st.TimeEstimate,
			Position:     i,
		})
	}
	if t.Status == task.StatusCompleted {
		t.Complete(now)
	}
	if err := validate(t); err != nil {
		return nil, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	subtasks := t.Subtasks
	if err := s.repo.CreateTask(rctx, t); err != nil {
		logger.Error("Service: Не удалось создать задачу", err, zap.String("title", t.Title))
		return nil, NewRemoteWriteFailed("add", err)
	}

	// задача уже сохранена: ошибка подзадач не откатывает её
	var subErr error
	if len(subtasks) > 0 {
		if err := s.repo.CreateSubtasks(rctx, t.ID, subtasks); err != nil {
			logger.Error("Service: Не удалось создать подзадачи", err, zap.String("task_id", t.ID.String()))
			t.Subtasks = []task.Subtask{}
			subErr = NewRemoteWriteFailed("add_subtasks", err)
		}
	}

	// новые первыми, как в ListTasks
	s.mtx.Lock()
	s.tasks = append([]*task.Task{t}, s.tasks...)
	s.mtx.Unlock()

	logger.Info("Service: Задача создана", zap.String("task_id", t.ID.String()))
	return t.Clone(), subErr
}

// AddFromDraft создаёт задачу из черновика парсера, в том числе деградированного
func (s *TaskStore) AddFromDraft(ctx context.Context, d parser.Draft) (*task.Task, error) {
	if d.Error != "" {
		logger.Info("Service: Задача из деградированного черновика", zap.String("reason", d.Error))
	}
	nt := NewTask{
		Title:        d.Title,
		Description:  d.Description,
		Category:     d.Category,
		Tags:         d.Tags,
		Priority:     d.Priority,
		DueDate:      d.DueDate,
		TimeEstimate: d.TimeEstimate,
	}
	for _, st := range d.Subtasks {
		nt.Subtasks = append(nt.Subtasks, NewSubtask{
			Title:        st.Title,
			Description:  st.Description,
			TimeEstimate: st.TimeEstimate,
		})
	}
	return s.Add(ctx, nt)
}

func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, opts ...task.TaskOption) (*task.Task, error) {
	completed := false
	return s.mutate(ctx, "update", id,
		func(t *task.Task) error {
			wasCompleted := t.IsCompleted()
			t.Apply(opts...)
			switch {
			case t.IsCompleted() && !wasCompleted:
				t.Complete(s.clock.Now())
				completed = true
			case !t.IsCompleted():
				t.CompletedAt = nil
			}
			return nil
		},
		func(ctx context.Context, t *task.Task) error {
			if completed {
				return s.repo.CompleteTask(ctx, t)
			}
			return s.repo.UpdateTask(ctx, t)
		})
}

func (s *TaskStore) AddSubtask(ctx context.Context, taskID uuid.UUID, title, description string) (*task.Task, error) {
	var added task.Subtask
	return s.mutate(ctx, "add_subtask", taskID,
		func(t *task.Task) error {
			position := 0
			for _, st := range t.Subtasks {
				position = max(position, st.Position+1)
			}
			added = task.Subtask{
				ID:          uuid.New(),
				Title:       strings.TrimSpace(title),
				Description: description,
				Position:    position,
			}
			t.Subtasks = append(t.Subtasks, added)
			return nil
		},
		func(ctx context.Context, t *task.Task) error {
			return s.repo.CreateSubtasks(ctx, t.ID, []task.Subtask{added})
		})
}

func (s *TaskStore) DeleteSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, "delete_subtask", taskID,
		func(t *task.Task) error {
			i := slices.IndexFunc(t.Subtasks, func(st task.Subtask) bool { return st.ID == subtaskID })
			if i < 0 {
				return NewNotFound("подзадача", subtaskID.String())
			}
			t.Subtasks = slices.Delete(t.Subtasks, i, i+1)
			return nil
		},
		func(ctx context.Context, t *task.Task) error {
			return s.repo.DeleteSubtask(ctx, t.ID, subtaskID)
		})
}

// ToggleSubtask инвертирует completed у подзадачи с индексом index
func (s *TaskStore) ToggleSubtask(ctx context.Context, taskID uuid.UUID, index int) (*task.Task, error) {
	var toggled task.Subtask
	return s.mutate(ctx, "toggle_subtask", taskID,
		func(t *task.Task) error {
			if index < 0 || index >= len(t.Subtasks) {
				return NewValidationError("index", "подзадачи с таким индексом нет")
			}
			t.Subtasks[index].Completed = !t.Subtasks[index].Completed
			toggled = t.Subtasks[index]
			return nil
		},
		func(ctx context.Context, t *task.Task) error {
			return s.repo.UpdateSubtask(ctx, t.ID, toggled)
		})
}

// CompleteTask - статус completed, прогресс 100, все подзадачи выполнены
func (s *TaskStore) CompleteTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, "complete", id,
		func(t *task.Task) error {
			t.Complete(s.clock.Now())
			return nil
		},
		s.repo.CompleteTask)
}

// UpdateCategory добавляет или убирает категорию, сохраняется весь набор
func (s *TaskStore) UpdateCategory(ctx context.Context, id uuid.UUID, category string, add bool) (*task.Task, error) {
	category = strings.TrimSpace(category)
	return s.mutate(ctx, "update_category", id,
		func(t *task.Task) error {
			if category == "" {
				return NewValidationError("category", "категория не может быть пустой")
			}
			if add {
				t.Category = task.NormalizeCategory(append(t.Category, category))
			} else {
				t.Category = task.NormalizeCategory(slices.DeleteFunc(t.Category, func(c string) bool { return c == category }))
			}
			return nil
		},
		s.repo.UpdateTask)
}

func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) (*task.Task, error) {
	return s.mutate(ctx, "update_progress", id,
		func(t *task.Task) error {
			if progress < 0 || progress > 100 {
				return NewValidationError("progress", "прогресс должен быть в диапазоне 0..100")
			}
			t.Progress = progress
			return nil
		},
		s.repo.UpdateTask)
}

func (s *TaskStore) AddDependency(ctx context.Context, id, dependencyID uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, "add_dependency", id,
		func(t *task.Task) error {
			if dependencyID == id {
				return NewValidationError("dependencies", "задача не может зависеть от себя")
			}
			if _, ok := s.find(dependencyID); !ok {
				return NewNotFound("задача", dependencyID.String())
			}
			if !slices.Contains(t.Dependencies, dependencyID) {
				t.Dependencies = append(t.Dependencies, dependencyID)
			}
			return nil
		},
		s.repo.UpdateTask)
}

func (s *TaskStore) RemoveDependency(ctx context.Context, id, dependencyID uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, "remove_dependency", id,
		func(t *task.Task) error {
			t.Dependencies = slices.DeleteFunc(t.Dependencies, func(d uuid.UUID) bool { return d == dependencyID })
			return nil
		},
		s.repo.UpdateTask)
}

// mutate - общий путь изменения: проверка пользователя, изменение копии,
// запись в хранилище и только затем замена локальной задачи
func (s *TaskStore) mutate(
	ctx context.Context,
	op string,
	id uuid.UUID,
	change func(*task.Task) error,
	persist func(context.Context, *task.Task) error,
) (*task.Task, error) {
	if _, err := s.userID(ctx); err != nil {
		return nil, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	current, ok := s.find(id)
	if !ok {
		logger.Warn("Service: Задача не найдена", zap.String("op", op), zap.String("task_id", id.String()))
		return nil, NewNotFound("задача", id.String())
	}

	updated := current.Clone()
	if err := change(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock.Now()
	if err := validate(updated); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := persist(rctx, updated); err != nil {
		logger.Error("Service: Изменение не сохранено", err, zap.String("op", op), zap.String("task_id", id.String()))
		return nil, NewRemoteWriteFailed(op, err)
	}

	s.mtx.Lock()
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks[i] = updated
			break
		}
	}
	s.mtx.Unlock()

	return updated.Clone(), nil
}

// Delete помечает задачу удалённой и планирует окончательное удаление
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.userID(ctx); err != nil {
		return err
	}

	s.op.Lock()
	defer s.op.Unlock()

	current, ok := s.find(id)
	if !ok {
		logger.Warn("Service: Задача для удаления не найдена", zap.String("task_id", id.String()))
		return NewNotFound("задача", id.String())
	}

	now := s.clock.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := s.repo.SoftDeleteTask(rctx, id, now); err != nil {
		logger.Error("Service: Мягкое удаление не выполнено", err, zap.String("task_id", id.String()))
		return NewRemoteWriteFailed("delete", err)
	}

	deleted := current.Clone()
	deleted.DeletedAt = &now

	s.mtx.Lock()
	s.tasks = slices.DeleteFunc(s.tasks, func(t *task.Task) bool { return t.ID == id })
	s.deleted = append(s.deleted, deleted)
	s.timers[id] = s.clock.AfterFunc(s.cfg.GracePeriod, func() { s.purge(id) })
	s.mtx.Unlock()

	logger.Info("Service: Задача перемещена в корзину",
		zap.String("task_id", id.String()), zap.Duration("grace", s.cfg.GracePeriod))
	return nil
}

// purge срабатывает по таймеру, если задачу не восстановили
func (s *TaskStore) purge(id uuid.UUID) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mtx.Lock()
	delete(s.timers, id)
	i := slices.IndexFunc(s.deleted, func(t *task.Task) bool { return t.ID == id })
	if i < 0 {
		s.mtx.Unlock()
		return
	}
	s.deleted = slices.Delete(s.deleted, i, i+1)
	s.purged[id] = struct{}{}
	s.mtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	// строка остаётся с deleted_at и не попадёт в Load
	if err := s.repo.PurgeTask(ctx, id); err != nil {
		logger.Error("Service: Окончательное удаление не выполнено", err, zap.String("task_id", id.String()))
		return
	}
	logger.Info("Service: Задача удалена окончательно", zap.String("task_id", id.String()))
}

// Restore возвращает задачу из корзины, пока не истекло окно восстановления
func (s *TaskStore) Restore(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	if _, err := s.userID(ctx); err != nil {
		return nil, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	s.mtx.RLock()
	i := slices.IndexFunc(s.deleted, func(t *task.Task) bool { return t.ID == id })
	_, expired := s.purged[id]
	s.mtx.RUnlock()

	if i < 0 {
		if expired {
			logger.Warn("Service: Окно восстановления истекло", zap.String("task_id", id.String()))
			return nil, &BusinessError{
				Code:    CodeRestoreExpired,
				Message: "задача уже удалена окончательно",
				Details: map[string]any{"id": id.String()},
				Err:     ErrNotFound,
			}
		}
		logger.Warn("Service: Задача в корзине не найдена", zap.String("task_id", id.String()))
		return nil, NewNotFound("задача", id.String())
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := s.repo.RestoreTask(rctx, id); err != nil {
		logger.Error("Service: Восстановление не выполнено", err, zap.String("task_id", id.String()))
		return nil, NewRemoteWriteFailed("restore", err)
	}

	s.mtx.Lock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	restored := s.deleted[i]
	s.deleted = slices.Delete(s.deleted, i, i+1)
	restored.DeletedAt = nil
	s.tasks = append(s.tasks, restored)
	s.mtx.Unlock()

	logger.Info("Service: Задача восстановлена", zap.String("task_id", id.String()))
	return restored.Clone(), nil
}

// Reset сбрасывает коллекцию при выходе пользователя. Задачи из корзины
// удаляются окончательно сразу: окно восстановления не переживает выход.
func (s *TaskStore) Reset(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mtx.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	staged := s.deleted
	s.tasks = []*task.Task{}
	s.deleted = []*task.Task{}
	s.purged = make(map[uuid.UUID]struct{})
	s.mtx.Unlock()

	for _, t := range staged {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		err := s.repo.PurgeTask(rctx, t.ID)
		cancel()
		if err != nil {
			logger.Warn("Service: Задача из корзины не удалена при выходе",
				zap.String("task_id", t.ID.String()), zap.Error(err))
		}
	}
	logger.Info("Service: Коллекция задач сброшена", zap.Int("purged", len(staged)))
}

// Close останавливает отложенные удаления
func (s *TaskStore) Close() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *TaskStore) find(id uuid.UUID) (*task.Task, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (s *TaskStore) Get(id uuid.UUID) (*task.Task, error) {
	t, ok := s.find(id)
	if !ok {
		return nil, NewNotFound("задача", id.String())
	}
	return t.Clone(), nil
}

func (s *TaskStore) Tasks() []*task.Task {
	return s.snapshot(false, nil)
}

// ActiveTasks - задачи без статуса completed
func (s *TaskStore) ActiveTasks() []*task.Task {
	return s.snapshot(false, func(t *task.Task) bool { return !t.IsCompleted() })
}

func (s *TaskStore) DeletedTasks() []*task.Task {
	return s.snapshot(true, nil)
}

func (s *TaskStore) snapshot(deleted bool, keep func(*task.Task) bool) []*task.Task {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	src := s.tasks
	if deleted {
		src = s.deleted
	}
	res := make([]*task.Task, 0, len(src))
	for _, t := range src {
		if keep == nil || keep(t) {
			res = append(res, t.Clone())
		}
	}
	return res
}

func validate(t *task.Task) error {
	err := t.Validate()
	var fe *task.FieldError
	if errors.As(err, &fe) {
		return NewValidationError(fe.Field, fe.Reason)
	}
	return err
}
